package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Plugin configuration blobs (tokens, secrets) are encrypted at rest with
// AES-GCM keyed from DISPATCH_ENCRYPTION_KEY. An empty key disables
// encryption, which is acceptable only in development.

func gcmFromKey(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptConfig serializes and encrypts a plugin configuration blob.
func EncryptConfig(key string, cfg JSONB) (string, error) {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if key == "" {
		return base64.StdEncoding.EncodeToString(plain), nil
	}
	gcm, err := gcmFromKey(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptConfig reverses EncryptConfig.
func DecryptConfig(key, blob string) (JSONB, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	if key == "" {
		var cfg JSONB
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	gcm, err := gcmFromKey(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	plain, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return nil, err
	}
	var cfg JSONB
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
