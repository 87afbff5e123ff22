package security

import (
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "unit-test-passphrase")

	secret := "api-secret-abc123"
	sealed, err := EncryptString(secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if sealed == secret {
		t.Fatalf("ciphertext must differ from plaintext")
	}

	plain, err := DecryptString(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != secret {
		t.Fatalf("round trip changed the secret: %q", plain)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "first-key")
	sealed, err := EncryptString("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "other-key")
	if _, err := DecryptString(sealed); err == nil {
		t.Fatalf("decrypting with the wrong key must fail")
	}
}

func TestMissingKeyRejected(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")
	if _, err := EncryptString("secret"); err == nil {
		t.Fatalf("empty credentials key must be rejected")
	}
}
