package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Encryption errors.
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// DeriveUserKey derives a per-user subkey from the process-wide master key via
// HKDF-SHA256, keyed on the user's id. This backs the "authenticated encryption
// with per-user key derivation" primitive the spec assumes for wallet key
// material (spec §1): every wallet's encrypted_key is protected under a key
// that is unique to its owning user, never the bare master key.
func DeriveUserKey(masterKey []byte, userID int64) ([]byte, error) {
	if len(masterKey) < 32 {
		return nil, ErrInvalidKeyLength
	}
	info := []byte("raptor-wallet-key")
	salt := make([]byte, 8)
	for i := 0; i < 8; i++ {
		salt[i] = byte(userID >> (8 * i))
	}
	r := hkdf.New(sha256.New, masterKey, salt, info)
	derived := make([]byte, 32)
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, err
	}
	return derived, nil
}

// Encrypt encrypts plaintext with AES-256-GCM, returning a base64-encoded,
// nonce-prefixed ciphertext suitable for a single jsonb/text column.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
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

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Callers should zeroize the returned plaintext's
// backing array as soon as the signing step that needed it completes (spec §9
// "Encrypted material handling").
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	if len(key) != 32 {
		return "", ErrInvalidKeyLength
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertextData := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertextData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey generates a cryptographically secure 32-byte AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey checks the key is the right length for AES-256.
func ValidateKey(key []byte) error {
	if len(key) != 32 {
		return ErrInvalidKeyLength
	}
	return nil
}

// EncryptForUser derives the user's subkey from the master key and encrypts plaintext under it.
func EncryptForUser(plaintext string, masterKey []byte, userID int64) (string, error) {
	key, err := DeriveUserKey(masterKey, userID)
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key)
}

// DecryptForUser derives the user's subkey from the master key and decrypts ciphertext under it.
func DecryptForUser(ciphertextBase64 string, masterKey []byte, userID int64) (string, error) {
	key, err := DeriveUserKey(masterKey, userID)
	if err != nil {
		return "", err
	}
	return Decrypt(ciphertextBase64, key)
}
