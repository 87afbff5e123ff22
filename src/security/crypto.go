package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// salt for key derivation; the passphrase itself comes from the
// EXCHANGE_CREDENTIALS_KEY environment variable
var kdfSalt = []byte("asv8-credentials-v1")

func deriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("EXCHANGE_CREDENTIALS_KEY is not set")
	}
	return scrypt.Key([]byte(passphrase), kdfSalt, 1<<15, 8, 1, 32)
}

// EncryptString seals a secret with AES-GCM for at-rest storage. Output is
// base64(nonce || ciphertext).
func EncryptString(plaintext string) (string, error) {
	key, err := deriveKey(GetConfig().ExchangeCRKey)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := deriveKey(GetConfig().ExchangeCRKey)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", errors.New("credential blob too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return string(plain), nil
}
