// Package vault seals short secrets such as portal passwords before they are
// stored.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrUnsealFailed is returned for truncated or tampered ciphertext, or when
// the key does not match.
var ErrUnsealFailed = errors.New("vault: unseal failed")

// Vault seals values with NaCl secretbox. The output is the random nonce
// followed by the box.
type Vault struct {
	key [32]byte
}

// New derives the box key from secret.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("vault secret is empty")
	}
	return &Vault{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plaintext.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &v.key), nil
}

// Open decrypts a value produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &v.key)
	if !ok {
		return nil, ErrUnsealFailed
	}
	return out, nil
}
