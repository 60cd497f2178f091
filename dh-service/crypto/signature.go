// Package crypto builds transaction signers for the accounts the deployment tooling
// sends from: a single private key for live networks, or accounts derived from a
// mnemonic for development networks.
package crypto

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	hdwallet "github.com/ethereum-optimism/go-ethereum-hdwallet"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultHDPathPrefix is the BIP-44 prefix the development accounts are derived under.
const DefaultHDPathPrefix = "m/44'/60'/0'/0"

// SignerFn signs a transaction on behalf of address.
type SignerFn func(ctx context.Context, address common.Address, tx *types.Transaction) (*types.Transaction, error)

// Account is a sending account with its key.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

func NewAccount(key *ecdsa.PrivateKey) Account {
	return Account{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// Signer returns a SignerFn for this account on chainID.
func (a Account) Signer(chainID *big.Int) SignerFn {
	signer := types.LatestSignerForChainID(chainID)
	return func(_ context.Context, address common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if address != a.Address {
			return nil, fmt.Errorf("not authorized to sign for %s", address)
		}
		return types.SignTx(tx, signer, a.key)
	}
}

// AccountFromPrivateKey parses a hex private key, with or without 0x prefix.
func AccountFromPrivateKey(privateKey string) (Account, error) {
	if privateKey == "" {
		return Account{}, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return Account{}, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewAccount(key), nil
}

// AccountFromMnemonic derives the account at hdPath.
func AccountFromMnemonic(mnemonic, hdPath string) (Account, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return Account{}, fmt.Errorf("failed to create wallet: %w", err)
	}
	return deriveAccount(wallet, hdPath)
}

// AccountsFromMnemonic derives count accounts under DefaultHDPathPrefix, index 0 first.
func AccountsFromMnemonic(mnemonic string, count int) ([]Account, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	out := make([]Account, 0, count)
	for i := 0; i < count; i++ {
		acc, err := deriveAccount(wallet, fmt.Sprintf("%s/%d", DefaultHDPathPrefix, i))
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func deriveAccount(wallet *hdwallet.Wallet, hdPath string) (Account, error) {
	path, err := hdwallet.ParseDerivationPath(hdPath)
	if err != nil {
		return Account{}, fmt.Errorf("invalid hd path %q: %w", hdPath, err)
	}
	acc, err := wallet.Derive(path, false)
	if err != nil {
		return Account{}, fmt.Errorf("failed to derive account %s: %w", hdPath, err)
	}
	return accountFromWallet(wallet, acc)
}

func accountFromWallet(wallet *hdwallet.Wallet, acc accounts.Account) (Account, error) {
	key, err := wallet.PrivateKey(acc)
	if err != nil {
		return Account{}, fmt.Errorf("failed to load private key for %s: %w", acc.Address, err)
	}
	return NewAccount(key), nil
}
