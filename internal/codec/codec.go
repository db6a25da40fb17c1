// Package codec provides password-based authenticated encryption for export
// payloads.
//
// Wire format: base64(salt ‖ iv ‖ ciphertext ‖ tag), standard encoding.
// The key is derived from the password with PBKDF2-SHA256 and a fresh salt
// per payload; the cipher is AES-256-GCM with a fresh 12-byte IV.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/roach88/tether/internal/model"
)

const (
	// SaltSize is the PBKDF2 salt size.
	SaltSize = 16
	// NonceSize is the AES-GCM IV size.
	NonceSize = 12
	// KeySize is the AES-256 key size.
	KeySize = 32
	// Iterations is the minimum PBKDF2 iteration count.
	Iterations = 100000
)

// Codec encrypts and decrypts payloads with a password.
// Codec is stateless apart from configuration and safe for concurrent use.
type Codec struct {
	iterations int
	random     io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithIterations raises the PBKDF2 iteration count. Values below Iterations
// are ignored. Both sides of an exchange must use the same count.
func WithIterations(n int) Option {
	return func(c *Codec) {
		if n > Iterations {
			c.iterations = n
		}
	}
}

// WithRandom replaces the source of salts and IVs.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) { c.random = r }
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{iterations: Iterations, random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt seals plaintext under password and returns the base64 payload.
func (c *Codec) Encrypt(plaintext []byte, password string) (string, error) {
	header := make([]byte, SaltSize+NonceSize)
	if _, err := io.ReadFull(c.random, header); err != nil {
		return "", fmt.Errorf("encrypt: read random: %w", err)
	}
	salt, nonce := header[:SaltSize], header[SaltSize:]

	gcm, err := c.aead(password, salt)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	sealed := gcm.Seal(header, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt. A wrong password, a
// truncated payload or any tampering yields a DecryptionFailure and no
// plaintext.
func (c *Codec) Decrypt(payload string, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, model.DecryptionFailure("codec.decrypt", fmt.Errorf("decode base64: %w", err))
	}
	if len(raw) < SaltSize+NonceSize {
		return nil, model.DecryptionFailure("codec.decrypt", errors.New("payload too short"))
	}

	salt := raw[:SaltSize]
	nonce := raw[SaltSize : SaltSize+NonceSize]
	ciphertext := raw[SaltSize+NonceSize:]

	gcm, err := c.aead(password, salt)
	if err != nil {
		return nil, model.DecryptionFailure("codec.decrypt", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, model.DecryptionFailure("codec.decrypt", err)
	}
	return plaintext, nil
}

func (c *Codec) aead(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, c.iterations, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
