// Package chaincfg holds the static per-network configuration of the deployment
// tooling: which price feed the donation contract reads on each chain, and how to
// reach each named network.
package chaincfg

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"golang.org/x/exp/slices"
)

const (
	LocalChainID   uint64 = 31337
	SepoliaChainID uint64 = 11155111
)

// Mock price feed constructor arguments.
const (
	Decimals uint8 = 8
	Answer   int64 = 200000000000
)

// InitialAnswer is Answer as the int256 the aggregator constructor takes.
func InitialAnswer() *big.Int {
	return big.NewInt(Answer)
}

var ErrUnknownChain = errors.New("unknown chain id")

// NetworkConfig is the price feed a chain uses.
type NetworkConfig struct {
	Name             string
	PriceFeedAddress common.Address
}

var networkConfig = map[uint64]NetworkConfig{
	SepoliaChainID: {
		Name:             "Sepolia",
		PriceFeedAddress: common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"),
	},
}

// LookupNetworkConfig returns the price feed configuration of a production chain.
func LookupNetworkConfig(chainID uint64) (NetworkConfig, bool) {
	cfg, ok := networkConfig[chainID]
	return cfg, ok
}

// PriceFeed is the outcome of resolving a chain's price feed. When Mock is set the
// caller must deploy a mock aggregator first and use its address.
type PriceFeed struct {
	Address common.Address
	Mock    bool
}

func (p PriceFeed) String() string {
	if p.Mock {
		return "mock"
	}
	return p.Address.String()
}

// ResolvePriceFeed maps a chain id to its price feed.
func ResolvePriceFeed(chainID uint64) (PriceFeed, error) {
	if IsDevelopmentChain(chainID) {
		return PriceFeed{Mock: true}, nil
	}
	cfg, ok := LookupNetworkConfig(chainID)
	if !ok {
		return PriceFeed{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return PriceFeed{Address: cfg.PriceFeedAddress}, nil
}

// IsDevelopmentChain reports whether chainID is the local development chain.
func IsDevelopmentChain(chainID uint64) bool {
	return chainID == LocalChainID
}

// DevelopmentChains are the network names that run against a local node.
var DevelopmentChains = []string{"localhost", "hardhat"}

func IsDevelopmentNetwork(name string) bool {
	return slices.Contains(DevelopmentChains, name)
}

// DevMnemonic is the mnemonic local development nodes fund their accounts from.
const DevMnemonic = "test test test test test test test test test test test junk"

// Network describes how to reach a named network and send to it. URL and key
// material that come from the environment are named by their variables.
type Network struct {
	Name    string
	ChainID uint64

	URL    string
	URLEnv string

	// Local networks derive DevAccounts accounts from DevMnemonic; live networks
	// use the single key in PrivateKeyEnv.
	DevAccounts   int
	PrivateKeyEnv string

	GasLimit           uint64
	GasPrice           *big.Int
	BlockConfirmations uint64

	ExplorerAPIURL string
	ExplorerURL    string
}

// Live reports whether the network is not a development network.
func (n Network) Live() bool {
	return !IsDevelopmentNetwork(n.Name)
}

func localNetwork(name string) Network {
	return Network{
		Name:               name,
		ChainID:            LocalChainID,
		URL:                "http://127.0.0.1:8545/",
		DevAccounts:        20,
		GasLimit:           2_100_000,
		GasPrice:           big.NewInt(8 * params.GWei),
		BlockConfirmations: 1,
	}
}

var networks = map[string]Network{
	"localhost": localNetwork("localhost"),
	"hardhat":   localNetwork("hardhat"),
	"sepolia": {
		Name:               "sepolia",
		ChainID:            SepoliaChainID,
		URLEnv:             "SEPOLIA_RPC_URL",
		PrivateKeyEnv:      "PRIVATE_KEY",
		BlockConfirmations: 6,
		ExplorerAPIURL:     "https://api-sepolia.etherscan.io/api",
		ExplorerURL:        "https://sepolia.etherscan.io",
	},
}

// LookupNetwork returns the named network. The returned value is a copy.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q, expected one of %s", name, strings.Join(NetworkNames(), ", "))
	}
	if n.GasPrice != nil {
		n.GasPrice = new(big.Int).Set(n.GasPrice)
	}
	return n, nil
}

// NetworkNames lists the known networks in a stable order.
func NetworkNames() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
