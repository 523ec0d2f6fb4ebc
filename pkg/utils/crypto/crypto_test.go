package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "ya29.some-access-token"
	key := "test-encryption-key"

	ciphertext, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := Decrypt(ciphertext, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	a, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two encryptions of the same input produced the same ciphertext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	ciphertext, err := Encrypt("secret", "key-one")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Decrypt(ciphertext, "key-two")
	if !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("got %v, want ErrInvalidCiphertext", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	for _, input := range []string{"", "not-base64!!!", "aGVsbG8="} {
		if _, err := Decrypt(input, "key"); !errors.Is(err, ErrInvalidCiphertext) {
			t.Fatalf("Decrypt(%q): got %v, want ErrInvalidCiphertext", input, err)
		}
	}
}
