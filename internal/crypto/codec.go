// Package crypto provides the reversible codec used to encrypt token values
// before they reach the database. AES-256-GCM with a random nonce per value;
// the wire form is base64(nonce)|base64(ciphertext).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adsboard/adsboard/internal/config"
	"go.uber.org/fx"
)

const (
	nonceSize = 12 // AES-GCM 96-bit nonce
	keySize   = 32 // AES-256
	sep       = "|"
)

// ErrDecrypt is returned when ciphertext cannot be authenticated: tampered
// data or a value written under a different key. Retrying cannot succeed;
// callers treat this as a configuration fault, not a transient failure.
var ErrDecrypt = errors.New("ciphertext authentication failed")

// Codec encrypts and decrypts short strings under a fixed process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// New builds a Codec from a raw 32-byte key.
func New(key []byte) (*Codec, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", config.ErrConfiguration, keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// NewFromConfig wires the codec off the configured token key.
func NewFromConfig(cfg config.Config) (*Codec, error) {
	return New(cfg.TokenCryptoKey)
}

// Encrypt seals plaintext and returns base64(nonce)|base64(ciphertext).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. A value sealed under a different key yields
// ErrDecrypt.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	parts := strings.Split(ciphertext, sep)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: want base64(nonce)|base64(ciphertext)", ErrDecrypt)
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode nonce: %v", ErrDecrypt, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrDecrypt, err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecrypt, nonceSize, len(nonce))
	}
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(pt), nil
}

var Module = fx.Module("crypto",
	fx.Provide(NewFromConfig),
)
