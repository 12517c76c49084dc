// Package codec holds the persisted binary form of review embeddings.
//
// Layout (version 1): one version byte, a little-endian uint32 dimension,
// then dimension little-endian IEEE-754 float32 values.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const EmbeddingVersion byte = 1

const headerSize = 5

var (
	ErrUnsupportedVersion = errors.New("unsupported embedding encoding version")
	ErrCorruptEmbedding   = errors.New("corrupt embedding blob")
)

func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, headerSize+4*len(vec))
	buf[0] = EmbeddingVersion
	binary.LittleEndian.PutUint32(buf[1:headerSize], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding returns nil for an empty blob.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < headerSize {
		return nil, ErrCorruptEmbedding
	}
	if blob[0] != EmbeddingVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, blob[0])
	}

	dim := int(binary.LittleEndian.Uint32(blob[1:headerSize]))
	if len(blob) != headerSize+4*dim {
		return nil, fmt.Errorf("%w: dimension %d does not match %d bytes", ErrCorruptEmbedding, dim, len(blob))
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[headerSize+4*i:]))
	}
	return vec, nil
}

// ParseLegacyEmbedding reads the textual vector form found in exported CSV
// files, e.g. "tensor([0.1, -0.2])" or "[0.1, -0.2]". It is accepted on import
// only; nothing in this module writes vectors as text.
func ParseLegacyEmbedding(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "tensor(")
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
