package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "v1:"
	nonceSize    = 24
	keySize      = 32
)

var (
	keySalt = []byte("financeflow/token-box")
	keyInfo = []byte("secretbox-v1")
)

var ErrUnreadableToken = errors.New("stored token cannot be decrypted")

// TokenBox seals provider access tokens before they are written to the database.
type TokenBox struct {
	key [keySize]byte
}

// NewTokenBox derives the secretbox key from the configured passphrase with
// HKDF-SHA256.
func NewTokenBox(passphrase string) (*TokenBox, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("token encryption key is empty")
	}
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return &TokenBox{key: key}, nil
}

func deriveKey(passphrase string) ([keySize]byte, error) {
	var key [keySize]byte
	kdf := hkdf.New(sha256.New, []byte(passphrase), keySalt, keyInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("derive token key: %w", err)
	}
	return key, nil
}

// Seal returns "v1:" followed by base64(nonce || box).
func (b *TokenBox) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (b *TokenBox) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("%w: unknown format", ErrUnreadableToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableToken, err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: too short", ErrUnreadableToken)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", fmt.Errorf("%w: authentication failed", ErrUnreadableToken)
	}
	return string(plain), nil
}
