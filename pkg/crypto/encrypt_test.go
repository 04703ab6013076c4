package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple text", "Hello, World!"},
		{"base58 private key example", "5Kb8kLf9zgWQnogidDA76MzPL6TsZZY36hWXMssSzNydYXYB9KF"},
		{"unicode text", "Привет мир 你好世界"},
		{"special chars", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"long text", strings.Repeat("a", 1000)},
		{"json data", `{"secret_key": "deadbeef"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			if _, err := base64.StdEncoding.DecodeString(encrypted); err != nil {
				t.Errorf("Encrypted result is not valid base64: %v", err)
			}

			if encrypted == tt.plaintext && tt.plaintext != "" {
				t.Error("Encrypted text should not equal plaintext")
			}

			decrypted, err := Decrypt(encrypted, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}

			if decrypted != tt.plaintext {
				t.Errorf("Decrypted text mismatch: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptDifferentResults(t *testing.T) {
	key, _ := GenerateKey()
	plaintext := "same text"

	encrypted1, _ := Encrypt(plaintext, key)
	encrypted2, _ := Encrypt(plaintext, key)

	if encrypted1 == encrypted2 {
		t.Error("two encryptions of the same text should produce different ciphertexts")
	}

	decrypted1, _ := Decrypt(encrypted1, key)
	decrypted2, _ := Decrypt(encrypted2, key)

	if decrypted1 != plaintext || decrypted2 != plaintext {
		t.Error("both ciphertexts should decrypt to the same plaintext")
	}
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	tests := []struct {
		name   string
		keyLen int
	}{
		{"too short - 16 bytes", 16},
		{"too short - 31 bytes", 31},
		{"too long - 33 bytes", 33},
		{"empty key", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			if _, err := Encrypt("test", key); err != ErrInvalidKeyLength {
				t.Errorf("Encrypt with %d byte key: got error %v, want %v", tt.keyLen, err, ErrInvalidKeyLength)
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	encrypted, _ := Encrypt("secret data", key1)

	if _, err := Decrypt(encrypted, key2); err != ErrDecryptionFailed {
		t.Errorf("Decrypt with wrong key: got error %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestDecryptInvalidBase64(t *testing.T) {
	key, _ := GenerateKey()

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"not base64", "not-valid-base64!!!", ErrInvalidCiphertext},
		{"truncated base64", "YWJj", ErrCiphertextTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.ciphertext, key); err != tt.wantErr {
				t.Errorf("Decrypt(%q): got error %v, want %v", tt.ciphertext, err, tt.wantErr)
			}
		})
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	encrypted, _ := Encrypt("original data", key)

	decoded, _ := base64.StdEncoding.DecodeString(encrypted)
	if len(decoded) > 20 {
		decoded[20] ^= 0xFF
	}
	tampered := base64.StdEncoding.EncodeToString(decoded)

	if _, err := Decrypt(tampered, key); err != ErrDecryptionFailed {
		t.Errorf("Decrypt tampered ciphertext: got error %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestGenerateKey(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("GenerateKey: got %d bytes, want 32", len(key1))
	}

	key2, _ := GenerateKey()
	if string(key1) == string(key2) {
		t.Error("two generated keys should be different")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr error
	}{
		{"valid 32 bytes", 32, nil},
		{"too short", 16, ErrInvalidKeyLength},
		{"too long", 64, ErrInvalidKeyLength},
		{"empty", 0, ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, tt.keyLen)
			if err := ValidateKey(key); err != tt.wantErr {
				t.Errorf("ValidateKey(%d bytes): got error %v, want %v", tt.keyLen, err, tt.wantErr)
			}
		})
	}
}

func TestDeriveUserKeyIsDeterministicPerUser(t *testing.T) {
	master, _ := GenerateKey()

	k1a, err := DeriveUserKey(master, 42)
	if err != nil {
		t.Fatalf("DeriveUserKey failed: %v", err)
	}
	k1b, _ := DeriveUserKey(master, 42)
	if string(k1a) != string(k1b) {
		t.Error("DeriveUserKey must be deterministic for the same (master, user)")
	}

	k2, _ := DeriveUserKey(master, 43)
	if string(k1a) == string(k2) {
		t.Error("DeriveUserKey must differ across users")
	}

	if len(k1a) != 32 {
		t.Errorf("DeriveUserKey: got %d bytes, want 32", len(k1a))
	}
}

func TestDeriveUserKeyRejectsShortMaster(t *testing.T) {
	if _, err := DeriveUserKey([]byte("too-short"), 1); err != ErrInvalidKeyLength {
		t.Errorf("got error %v, want %v", err, ErrInvalidKeyLength)
	}
}

func TestEncryptDecryptForUser(t *testing.T) {
	master, _ := GenerateKey()

	encrypted, err := EncryptForUser("wallet private key bytes", master, 7)
	if err != nil {
		t.Fatalf("EncryptForUser failed: %v", err)
	}

	decrypted, err := DecryptForUser(encrypted, master, 7)
	if err != nil {
		t.Fatalf("DecryptForUser failed: %v", err)
	}
	if decrypted != "wallet private key bytes" {
		t.Errorf("got %q, want original plaintext", decrypted)
	}

	if _, err := DecryptForUser(encrypted, master, 8); err != ErrDecryptionFailed {
		t.Errorf("decrypting under a different user's derived key should fail, got %v", err)
	}
}

func BenchmarkEncrypt(b *testing.B) {
	key, _ := GenerateKey()
	plaintext := "This is a typical wallet secret: abc123def456"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encrypt(plaintext, key)
	}
}

func BenchmarkDecrypt(b *testing.B) {
	key, _ := GenerateKey()
	encrypted, _ := Encrypt("This is a typical wallet secret: abc123def456", key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decrypt(encrypted, key)
	}
}
