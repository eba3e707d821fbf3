package ton

import (
	"fmt"
	"strings"

	"github.com/promoplace/backend/internal/keystore"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
)

// ProvisionedWallet is a freshly generated deposit wallet. The seed leaves
// this package only in encrypted form.
type ProvisionedWallet struct {
	Address       string
	EncryptedSeed []byte
}

// ProvisionWallet generates a new V4R2 wallet and encrypts its seed with
// the keystore.
func ProvisionWallet(api ton.APIClientWrapped, ks *keystore.Keystore) (*ProvisionedWallet, error) {
	seed := wallet.NewSeed()

	w, err := wallet.FromSeed(api, seed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("derive wallet from seed: %w", err)
	}

	plain := []byte(strings.Join(seed, " "))
	defer keystore.Zero(plain)

	encrypted, err := ks.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt wallet seed: %w", err)
	}

	return &ProvisionedWallet{
		Address:       w.WalletAddress().String(),
		EncryptedSeed: encrypted,
	}, nil
}

// OpenWallet decrypts a stored seed and derives the signing wallet. The
// caller must not retain the returned wallet beyond the signing call.
func OpenWallet(api ton.APIClientWrapped, ks *keystore.Keystore, encryptedSeed []byte) (*wallet.Wallet, error) {
	plain, err := ks.Decrypt(encryptedSeed)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet seed: %w", err)
	}
	defer keystore.Zero(plain)

	seed := strings.Fields(string(plain))
	w, err := wallet.FromSeed(api, seed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("derive wallet from seed: %w", err)
	}
	return w, nil
}
