package genkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLength(t *testing.T) {
	key, err := New()
	assert.NoError(t, err)
	assert.Len(t, key, KeyLen)
}

func TestNewAlphabet(t *testing.T) {
	key, err := New()
	assert.NoError(t, err)
	for _, c := range key {
		assert.Contains(t, alphanum, string(c))
	}
}

func TestNewIsRandom(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := New()
		assert.NoError(t, err)
		assert.False(t, seen[key], "unexpected collision in small sample")
		seen[key] = true
	}
}

func TestNewSecretDistinctLength(t *testing.T) {
	secret, err := NewSecret()
	assert.NoError(t, err)
	assert.NotEqual(t, KeyLen, len(secret))
}
