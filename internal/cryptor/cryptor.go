// Package cryptor encrypts media blobs per chat. Keys are derived from one
// session secret with HKDF-SHA256, so every chat gets its own key without
// any key exchange.
package cryptor

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cryptor transforms media on its way to and from the blob store.
type Cryptor interface {
	Encrypt(data []byte, chatID string) ([]byte, error)
	// Decrypt replaces the file at path with its plaintext.
	Decrypt(path, chatID string) error
}

var (
	ErrShortKey   = errors.New("cryptor: key must be at least 32 bytes")
	ErrCiphertext = errors.New("cryptor: ciphertext is truncated or corrupted")
)

// XChaCha seals blobs with XChaCha20-Poly1305 under a per-chat key. The
// output is nonce || ciphertext.
type XChaCha struct {
	secret []byte
}

func New(secret []byte) (*XChaCha, error) {
	if len(secret) < 32 {
		return nil, ErrShortKey
	}
	return &XChaCha{secret: secret}, nil
}

// FromBase64 decodes a standard base64 secret, as stored in session.toml.
func FromBase64(s string) (*XChaCha, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode media key: %w", err)
	}
	return New(key)
}

// GenerateKey returns a fresh base64 secret.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (c *XChaCha) aead(chatID string) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, nil, []byte("chatsync media "+chatID)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

func (c *XChaCha) Encrypt(data []byte, chatID string) ([]byte, error) {
	aead, err := c.aead(chatID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

func (c *XChaCha) open(data []byte, chatID string) ([]byte, error) {
	aead, err := c.aead(chatID)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plain, nil
}

func (c *XChaCha) Decrypt(path, chatID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	plain, err := c.open(data, chatID)
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, plain)
}

// Plain passes data through unchanged. It is used when no media key is
// configured.
type Plain struct{}

func (Plain) Encrypt(data []byte, _ string) ([]byte, error) { return data, nil }
func (Plain) Decrypt(string, string) error                  { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".decrypt-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
