// Package config reads the deployment tooling's environment and resolves the
// network it targets.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	mask "github.com/showa-93/go-mask"

	"github.com/donatehub/donatehub/dh-node/chaincfg"
	dhcrypto "github.com/donatehub/donatehub/dh-service/crypto"
)

// Env holds the process environment the scripts read. Variable names match the
// .env files of existing deployments.
type Env struct {
	PrivateKey          string `envconfig:"PRIVATE_KEY" mask:"fixed"`
	SepoliaRPCURL       string `envconfig:"SEPOLIA_RPC_URL" mask:"fixed"`
	EtherscanAPIKey     string `envconfig:"ETHERSCAN_API" mask:"fixed"`
	CoinMarketCapAPIKey string `envconfig:"COINMARKETCAP_API" mask:"fixed"`

	Network        string `envconfig:"DH_NETWORK" default:"localhost"`
	DeploymentsDir string `envconfig:"DH_DEPLOYMENTS_DIR" default:"deployments"`
	ArtifactsDir   string `envconfig:"DH_ARTIFACTS_DIR" default:"artifacts"`
}

// LoadEnv loads the given dotenv files, .env when none are named, into the process
// environment and decodes it. Missing files are skipped and variables already set
// in the environment win.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return env, nil
}

var masker = func() *mask.Masker {
	m := mask.NewMasker()
	m.RegisterMaskStringFunc(mask.MaskTypeFilled, m.MaskFilledString)
	m.RegisterMaskStringFunc(mask.MaskTypeFixed, m.MaskFixedString)
	return m
}()

// Masked returns a copy with every secret replaced, safe to log.
func (e Env) Masked() Env {
	out, err := masker.Mask(e)
	if err == nil {
		switch v := out.(type) {
		case Env:
			return v
		case *Env:
			return *v
		}
	}
	return Env{Network: e.Network, DeploymentsDir: e.DeploymentsDir, ArtifactsDir: e.ArtifactsDir}
}

// Lookup returns the value of one of the environment variables a network
// descriptor refers to.
func (e Env) Lookup(name string) (string, bool) {
	var v string
	switch name {
	case "PRIVATE_KEY":
		v = e.PrivateKey
	case "SEPOLIA_RPC_URL":
		v = e.SepoliaRPCURL
	case "ETHERSCAN_API":
		v = e.EtherscanAPIKey
	case "COINMARKETCAP_API":
		v = e.CoinMarketCapAPIKey
	default:
		return "", false
	}
	return v, v != ""
}

// NamedAccounts maps account names to their index in Target.Accounts.
var NamedAccounts = map[string]int{
	"deployer": 0,
}

// Target is a network ready to be dialed: the descriptor plus the endpoint and
// accounts taken from the environment.
type Target struct {
	Network  chaincfg.Network
	RPCURL   string
	Accounts []dhcrypto.Account
}

// Target resolves the named network against the environment.
func (e Env) Target(name string) (Target, error) {
	n, err := chaincfg.LookupNetwork(name)
	if err != nil {
		return Target{}, err
	}
	t := Target{Network: n, RPCURL: n.URL}
	if n.URLEnv != "" {
		url, ok := e.Lookup(n.URLEnv)
		if !ok {
			return Target{}, fmt.Errorf("network %s needs %s to be set", name, n.URLEnv)
		}
		t.RPCURL = url
	}

	switch {
	case n.DevAccounts > 0:
		t.Accounts, err = dhcrypto.AccountsFromMnemonic(chaincfg.DevMnemonic, n.DevAccounts)
		if err != nil {
			return Target{}, err
		}
	case n.PrivateKeyEnv != "":
		key, ok := e.Lookup(n.PrivateKeyEnv)
		if !ok {
			return Target{}, fmt.Errorf("network %s needs %s to be set", name, n.PrivateKeyEnv)
		}
		acc, err := dhcrypto.AccountFromPrivateKey(key)
		if err != nil {
			return Target{}, fmt.Errorf("invalid %s: %w", n.PrivateKeyEnv, err)
		}
		t.Accounts = []dhcrypto.Account{acc}
	default:
		return Target{}, fmt.Errorf("network %s has no accounts configured", name)
	}
	return t, nil
}

// Named returns the account registered under name.
func (t Target) Named(name string) (dhcrypto.Account, error) {
	idx, ok := NamedAccounts[name]
	if !ok {
		return dhcrypto.Account{}, fmt.Errorf("unknown named account %q", name)
	}
	if idx >= len(t.Accounts) {
		return dhcrypto.Account{}, fmt.Errorf("named account %q needs account #%d, network %s has %d", name, idx, t.Network.Name, len(t.Accounts))
	}
	return t.Accounts[idx], nil
}
