package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexLength(t *testing.T) {
	assert.Len(t, APIKey(), APIKeyBytes*2)
	assert.Len(t, Secret(), SecretBytes*2)
	assert.Len(t, ServerKey(), ServerKeyBytes*2)
}

func TestHexUnique(t *testing.T) {
	a := Secret()
	b := Secret()
	assert.NotEqual(t, a, b)
}
