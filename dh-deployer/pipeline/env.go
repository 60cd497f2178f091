// Package pipeline runs the deployment steps against a network: it resolves named
// accounts, deploys contracts idempotently and records them, and orders steps by
// their tags and dependencies.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/donatehub/donatehub/dh-deployer/artifacts"
	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	dhcrypto "github.com/donatehub/donatehub/dh-service/crypto"
	"github.com/donatehub/donatehub/dh-service/txmgr"
	"github.com/donatehub/donatehub/dh-service/txmgr/metrics"
)

// Verifier publishes the source of a deployed contract.
type Verifier interface {
	VerifyBestEffort(ctx context.Context, name string, rec *deployments.Record)
}

// Env is the network a deployment runs against.
type Env struct {
	Network chaincfg.Network
	ChainID uint64

	Backend   bindings.ContractBackend
	Signers   []txmgr.TxManager
	Store     deployments.Store
	Artifacts artifacts.Source
	Log       log.Logger

	// Optional.
	Verifier Verifier
	Gas      bindings.GasRecorder
}

// Account returns the transaction manager of a named account.
func (e *Env) Account(name string) (txmgr.TxManager, error) {
	idx, ok := config.NamedAccounts[name]
	if !ok {
		return nil, fmt.Errorf("unknown named account %q", name)
	}
	if idx >= len(e.Signers) {
		return nil, fmt.Errorf("named account %q needs account #%d, network %s has %d", name, idx, e.Network.Name, len(e.Signers))
	}
	return e.Signers[idx], nil
}

// Get returns the record of a deployment made on this network.
func (e *Env) Get(name string) (*deployments.Record, error) {
	return e.Store.Get(name)
}

// DonateHub binds the recorded DonateHub deployment to the named account.
func (e *Env) DonateHub(account string) (*bindings.DonateHub, error) {
	rec, err := e.Get(bindings.DonateHubName)
	if err != nil {
		return nil, err
	}
	tm, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	hub := bindings.NewDonateHub(rec.Address, e.Backend, tm)
	if e.Gas != nil {
		hub = hub.WithRecorder(e.Gas)
	}
	return hub, nil
}

// MockV3Aggregator binds the recorded mock price feed to the named account.
func (e *Env) MockV3Aggregator(account string) (*bindings.MockV3Aggregator, error) {
	rec, err := e.Get(bindings.MockV3AggregatorName)
	if err != nil {
		return nil, err
	}
	tm, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	return bindings.NewMockV3Aggregator(rec.Address, e.Backend, tm), nil
}

// WithStore returns a copy of the environment recording into store.
func (e *Env) WithStore(store deployments.Store) *Env {
	out := *e
	out.Store = store
	return &out
}

// Dial connects to the target's node and builds one transaction manager per
// account. Network gas settings apply where cfg leaves them unset. The caller
// closes the returned client.
func Dial(ctx context.Context, l log.Logger, target config.Target, cfg txmgr.CLIConfig, m metrics.TxMetricer) (*Env, *ethclient.Client, error) {
	if cfg.RPCURL != "" {
		target.RPCURL = cfg.RPCURL
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = target.Network.GasLimit
	}
	if err := cfg.Check(); err != nil {
		return nil, nil, fmt.Errorf("invalid tx manager config: %w", err)
	}
	// an explicit key replaces the network's accounts
	switch {
	case cfg.PrivateKey != "":
		acc, err := dhcrypto.AccountFromPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid private key: %w", err)
		}
		target.Accounts = []dhcrypto.Account{acc}
	case cfg.Mnemonic != "":
		acc, err := dhcrypto.AccountFromMnemonic(cfg.Mnemonic, cfg.HDPath)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid mnemonic: %w", err)
		}
		target.Accounts = []dhcrypto.Account{acc}
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.NetworkTimeout)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, target.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("could not dial %s: %w", target.Network.Name, err)
	}
	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("could not fetch chain id of %s: %w", target.Network.Name, err)
	}
	if chainID.Uint64() != target.Network.ChainID {
		client.Close()
		return nil, nil, fmt.Errorf("network %s expects chain %d, node reports %d", target.Network.Name, target.Network.ChainID, chainID)
	}

	base := cfg.Config(client, chainID)
	if base.GasPrice == nil && target.Network.GasPrice != nil {
		base.GasPrice = target.Network.GasPrice
	}
	env := &Env{
		Network: target.Network,
		ChainID: chainID.Uint64(),
		Backend: client,
		Log:     l,
	}
	for i, acc := range target.Accounts {
		tm, err := txmgr.NewSimpleTxManagerFromConfig(fmt.Sprintf("account-%d", i), l, m, base.WithAccount(acc))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		env.Signers = append(env.Signers, tm)
	}
	return env, client, nil
}
