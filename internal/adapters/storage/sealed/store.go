package sealed

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

// Store encrypts values with AES-GCM before handing them to the wrapped
// store. Values it cannot open are reported as absent.
type Store struct {
	inner domain.KVStore
	aead  cipher.AEAD
}

// Wrap builds a sealing store around inner. key must be 16, 24 or 32 bytes.
func Wrap(inner domain.KVStore, key []byte) (*Store, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Store{inner: inner, aead: aead}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	value, err := s.open(raw)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("sealed value unreadable, treating as absent", "key", key, "error", err)
		return "", false, nil
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

// seal returns base64(nonce || ciphertext).
func (s *Store) seal(value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	payload := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

func (s *Store) open(sealed string) (string, error) {
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(payload) < n {
		return "", fmt.Errorf("sealed value is too short")
	}
	plaintext, err := s.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt sealed value: %w", err)
	}
	return string(plaintext), nil
}
