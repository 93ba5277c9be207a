package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2"

func TestNewBoxRejectsBadKeys(t *testing.T) {
	_, err := NewBox("not-hex")
	assert.Error(t, err)

	_, err = NewBox("a1b2c3")
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	plaintext := []byte(`{"username":"2012345","cookie":"SESSION=abc"}`)

	sealed, err := box.Seal(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "2012345")

	opened, ok := box.Open(sealed)
	require.True(t, ok)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesFreshNonces(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	a, err := box.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpenRejectsCorruption(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	// Flip one byte everywhere: nonce, ciphertext and tag regions must
	// all fail authentication, never panic.
	for i := range sealed {
		corrupted := append([]byte(nil), sealed...)
		corrupted[i] ^= 0x01

		_, ok := box.Open(corrupted)
		assert.False(t, ok, "byte %d", i)
	}
}

func TestOpenRejectsTruncatedInput(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	for _, blob := range [][]byte{nil, {}, []byte("short"), []byte(strings.Repeat("x", 11))} {
		_, ok := box.Open(blob)
		assert.False(t, ok)
	}
}

func TestOpenRejectsForeignKey(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)
	other, err := NewBox(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	_, ok := other.Open(sealed)
	assert.False(t, ok)
}
