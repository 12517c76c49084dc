package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashText returns a stable key for text, ignoring surrounding whitespace and
// letter case so equivalent queries share cache entries.
func HashText(namespace, input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	sum := sha256.Sum256([]byte(namespace + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}
