package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashText(t *testing.T) {
	a := HashText("text-embedding-3-small", "  Cheap Pizza ")
	b := HashText("text-embedding-3-small", "cheap pizza")
	c := HashText("other-model", "cheap pizza")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
