package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []string{
		"",
		"a",
		"Atza|IwEBI-refresh-token-value",
		strings.Repeat("x", 64*1024),
		"token ✓ with unicode — payload",
	}
	for _, msg := range cases {
		ct, err := codec.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(msg), err)
		}
		pt, err := codec.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes): %v", len(msg), err)
		}
		if pt != msg {
			t.Fatalf("round trip mismatch for %d byte input", len(msg))
		}
	}
}

func TestNonceUniquePerValue(t *testing.T) {
	t.Parallel()

	codec, err := New(testKey(7))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := codec.Encrypt("same plaintext")
	b, _ := codec.Encrypt("same plaintext")
	if a == b {
		t.Fatal("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()

	writer, _ := New(testKey(10))
	reader, _ := New(testKey(200))

	ct, err := writer.Encrypt("sealed under key A")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := reader.Decrypt(ct); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptDetectsTamper(t *testing.T) {
	t.Parallel()

	codec, _ := New(testKey(3))
	ct, err := codec.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ciphertext format")
	}
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := codec.Decrypt(corrupted); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	t.Parallel()

	codec, _ := New(testKey(5))
	for _, raw := range []string{"", "no-separator", "a|b|c", "!!!|???"} {
		if _, err := codec.Decrypt(raw); !errors.Is(err, ErrDecrypt) {
			t.Fatalf("Decrypt(%q): expected ErrDecrypt, got %v", raw, err)
		}
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	t.Parallel()

	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}
