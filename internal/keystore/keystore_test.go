package keystore

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ks, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	secret := []byte("abandon ability able about above absent absorb abstract absurd abuse access accident")
	blob, err := ks.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(blob, []byte("abandon")) {
		t.Error("ciphertext leaks plaintext")
	}

	got, err := ks.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Error("round trip mismatch")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	ks, _ := New(testKey)
	blob, _ := ks.Encrypt([]byte("seed material"))

	blob[len(blob)-1] ^= 0xff
	if _, err := ks.Decrypt(blob); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}

	if _, err := ks.Decrypt([]byte("short")); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext for truncated blob, got %v", err)
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := New(strings.Repeat("ab", 16)); err == nil {
		t.Error("expected error for 16-byte key")
	}
}
