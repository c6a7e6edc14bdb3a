// Package vault holds the encrypted payload stores. Every backend returns
// handles prefixed with its own scheme and reports failures as
// domain.CollaboratorError.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealVersion = 1
	sealInfo    = "credanchor/vault/v1"
)

var ErrSealedCorrupt = errors.New("sealed payload corrupt")

// Sealer encrypts payloads with XChaCha20-Poly1305 under a key derived from a
// master key. A nil Sealer passes data through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("vault: master key must be at least 32 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns version || nonce || ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if s == nil {
		return plaintext, nil
	}
	out := make([]byte, 1+s.aead.NonceSize(), 1+s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	nonce := out[1 : 1+s.aead.NonceSize()]
	return s.aead.Seal(out, nonce, plaintext, out[:1]), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if s == nil {
		return sealed, nil
	}
	headerLen := 1 + s.aead.NonceSize()
	if len(sealed) < headerLen+s.aead.Overhead() || sealed[0] != sealVersion {
		return nil, ErrSealedCorrupt
	}
	plaintext, err := s.aead.Open(nil, sealed[1:headerLen], sealed[headerLen:], sealed[:1])
	if err != nil {
		return nil, ErrSealedCorrupt
	}
	return plaintext, nil
}
