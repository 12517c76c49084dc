package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3, 0}

	blob := EncodeEmbedding(vec)
	assert.Equal(t, EmbeddingVersion, blob[0])
	assert.Len(t, blob, 5+4*len(vec))

	got, err := DecodeEmbedding(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestDecodeEmbedding_Errors(t *testing.T) {
	got, err := DecodeEmbedding(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = DecodeEmbedding([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptEmbedding)

	blob := EncodeEmbedding([]float32{1, 2})
	blob[0] = 9
	_, err = DecodeEmbedding(blob)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	blob = EncodeEmbedding([]float32{1, 2})
	_, err = DecodeEmbedding(blob[:len(blob)-1])
	assert.ErrorIs(t, err, ErrCorruptEmbedding)
}

func TestParseLegacyEmbedding(t *testing.T) {
	got, err := ParseLegacyEmbedding("tensor([0.5, -0.25, 1.0])")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, got)

	got, err = ParseLegacyEmbedding("[1,2]")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)

	got, err = ParseLegacyEmbedding("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseLegacyEmbedding("[1, abc]")
	assert.Error(t, err)
}
