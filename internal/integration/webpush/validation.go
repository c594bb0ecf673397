package webpush

import (
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"imapntfy/internal/config"
)

// Validate checks an account's Web Push target. Encrypted delivery needs an
// https endpoint and keys that decode to valid P-256 material.
func Validate(w *config.WebPush) error {
	u, err := url.Parse(strings.TrimSpace(w.Endpoint))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("invalid push endpoint %q", w.Endpoint)
	}
	if !w.HasEncryption() {
		return nil
	}
	if u.Scheme != "https" {
		return errors.New("encrypted push endpoint must use https")
	}

	vapid, err := decodeKey("vapid_private_key", w.VapidPrivateKey, 32)
	if err != nil {
		return err
	}
	if _, err := ecdh.P256().NewPrivateKey(vapid); err != nil {
		return fmt.Errorf("vapid_private_key: %w", err)
	}

	p256dh, err := decodeKey("p256dh", w.P256dh, 65)
	if err != nil {
		return err
	}
	if _, err := ecdh.P256().NewPublicKey(p256dh); err != nil {
		return fmt.Errorf("p256dh: %w", err)
	}

	_, err = decodeKey("auth", w.Auth, 16)
	return err
}

// decodeKey accepts base64url with or without padding.
func decodeKey(field, raw string, size int) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(raw), "="))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64url: %w", field, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", field, size, len(b))
	}
	return b, nil
}
