// Package walletkey decrypts a wallet's encrypted key material for the
// duration of a single signing call. Decrypt only happens here, inside the
// execution worker's process, never upstream (spec §9 "Encrypted material
// handling").
package walletkey

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"raptor/internal/models"
	"raptor/pkg/crypto"
)

// Signer wraps a decrypted Solana keypair behind router.Signer, so router
// code never holds raw key bytes beyond what a single SignMessage call needs.
type Signer struct {
	key solana.PrivateKey
}

// Unlock decrypts w's key material under the process master key and returns
// a Signer bound to the resulting keypair. The caller should let the
// returned Signer go out of scope as soon as the signing it was built for
// completes.
func Unlock(w *models.Wallet, masterKey []byte) (*Signer, error) {
	plaintext, err := crypto.DecryptForUser(string(w.EncryptedKey), masterKey, w.UserID)
	if err != nil {
		return nil, fmt.Errorf("walletkey: decrypt: %w", err)
	}

	key, err := solana.PrivateKeyFromBase58(plaintext)
	if err != nil {
		return nil, fmt.Errorf("walletkey: parse decrypted key: %w", err)
	}
	if key.PublicKey().String() != w.PublicAddress {
		return nil, fmt.Errorf("walletkey: decrypted key does not match wallet %s", w.PublicAddress)
	}

	return &Signer{key: key}, nil
}

// PublicKey returns the wallet's base58 public address.
func (s *Signer) PublicKey() string {
	return s.key.PublicKey().String()
}

// SignMessage signs message with the unlocked keypair.
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	sig, err := s.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("walletkey: sign: %w", err)
	}
	return sig[:], nil
}
