// Package secret seals account passwords so they can live in the config file.
//
// A sealed value is "enc:" followed by base64(salt || nonce || ciphertext),
// where the AES-256-GCM key is derived from a master key with scrypt.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	Prefix       = "enc:"
	MasterKeyEnv = "IMAPNTFY_MASTER_KEY"

	saltSize = 16
)

var ErrNoMasterKey = errors.New(MasterKeyEnv + " is not set")

func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

func Seal(masterKey, plaintext string) (string, error) {
	if masterKey == "" {
		return "", ErrNoMasterKey
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(masterKey, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

func Open(masterKey, sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", fmt.Errorf("value is not sealed (missing %q prefix)", Prefix)
	}
	if masterKey == "" {
		return "", ErrNoMasterKey
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, Prefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(raw) < saltSize {
		return "", fmt.Errorf("sealed value too short")
	}

	salt, rest := raw[:saltSize], raw[saltSize:]
	gcm, err := newGCM(masterKey, salt)
	if err != nil {
		return "", err
	}
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}

	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt (wrong master key?): %w", err)
	}
	return string(plaintext), nil
}

func newGCM(masterKey string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(masterKey), salt, 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
