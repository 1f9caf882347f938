// Package crypto keeps CardDAV credentials encrypted at rest. Callers hold a
// SecretStore and decrypt only at the moment a transport client is built.
//
// Ciphertexts are AES-256-GCM with a random nonce prepended, base64 encoded.
// The key is derived from the configured passphrase with PBKDF2-SHA256.
//
//	secrets, err := crypto.NewSecretStore(cfg.EncryptionKey)
//	sealed, err := secrets.Encrypt("app-password")
//	plain, err := secrets.Decrypt(sealed)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"contact-sync/internal/common/errors"
)

// SecretStore encrypts and decrypts stored credentials.
type SecretStore interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

const (
	keySalt       = "contact-sync-credentials"
	keyIterations = 10000
	keyLength     = 32
)

// AESSecretStore is the AES-256-GCM SecretStore. It is safe for concurrent use.
type AESSecretStore struct {
	aead cipher.AEAD
}

// NewSecretStore derives a 32-byte key from passphrase.
func NewSecretStore(passphrase string) (*AESSecretStore, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(keySalt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}
	return &AESSecretStore{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string stays empty.
func (s *AESSecretStore) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Tampered input or a different
// key fails authentication.
func (s *AESSecretStore) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}
	return string(plaintext), nil
}
