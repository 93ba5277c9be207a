package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Box seals and opens session records with AES-256-GCM. A fresh nonce
// is generated per Seal and travels as a prefix of the sealed blob,
// followed by ciphertext and the GCM tag.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a 64-hex-char (32 byte) key.
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("session: invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session: encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("session: failed to generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a sealed blob. Any tampering or
// truncation reports ok=false; it never panics on malformed input.
func (b *Box) Open(sealed []byte) ([]byte, bool) {
	if len(sealed) < b.aead.NonceSize() {
		return nil, false
	}
	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]

	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
