package txmgr

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli"

	dhservice "github.com/donatehub/donatehub/dh-service"
	dhcrypto "github.com/donatehub/donatehub/dh-service/crypto"
)

const (
	RPCUrlFlagName = "rpc-url"
	// Key Management Flags
	MnemonicFlagName   = "mnemonic"
	HDPathFlagName     = "hd-path"
	PrivateKeyFlagName = "private-key"
	// TxMgr Flags
	NumConfirmationsFlagName          = "num-confirmations"
	SafeAbortNonceTooLowCountFlagName = "safe-abort-nonce-too-low-count"
	GasLimitFlagName                  = "gas-limit"
	GasPriceGweiFlagName              = "gas-price-gwei"
	ResubmissionTimeoutFlagName       = "resubmission-timeout"
	NetworkTimeoutFlagName            = "network-timeout"
	TxSendTimeoutFlagName             = "txmgr.send-timeout"
	TxNotInMempoolTimeoutFlagName     = "txmgr.not-in-mempool-timeout"
	ReceiptQueryIntervalFlagName      = "txmgr.receipt-query-interval"
)

func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   RPCUrlFlagName,
			Usage:  "HTTP provider URL for the node. Defaults to the selected network's URL",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "RPC_URL"),
		},
		cli.StringFlag{
			Name:   MnemonicFlagName,
			Usage:  "The mnemonic used to derive the sending wallet",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "MNEMONIC"),
		},
		cli.StringFlag{
			Name:   HDPathFlagName,
			Usage:  "The HD path used to derive the sending wallet from the mnemonic. The mnemonic flag must also be set.",
			Value:  dhcrypto.DefaultHDPathPrefix + "/0",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "HD_PATH"),
		},
		cli.StringFlag{
			Name:   PrivateKeyFlagName,
			Usage:  "The private key to send with. Must not be used with mnemonic.",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "PRIVATE_KEY"),
		},
		cli.Uint64Flag{
			Name:   NumConfirmationsFlagName,
			Usage:  "Number of confirmations which we will wait after sending a transaction. Contract deployments wait for the selected network's block confirmations instead",
			Value:  1,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "NUM_CONFIRMATIONS"),
		},
		cli.Uint64Flag{
			Name:   SafeAbortNonceTooLowCountFlagName,
			Usage:  "Number of ErrNonceTooLow observations required to give up on a tx at a particular nonce without receiving confirmation",
			Value:  3,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "SAFE_ABORT_NONCE_TOO_LOW_COUNT"),
		},
		cli.Uint64Flag{
			Name:   GasLimitFlagName,
			Usage:  "Minimum gas limit for every tx. 0 uses the estimate",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "GAS_LIMIT"),
		},
		cli.Uint64Flag{
			Name:   GasPriceGweiFlagName,
			Usage:  "Fixed legacy gas price in gwei. 0 uses EIP-1559 fee suggestions",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "GAS_PRICE_GWEI"),
		},
		cli.DurationFlag{
			Name:   ResubmissionTimeoutFlagName,
			Usage:  "Duration we will wait before resubmitting a transaction",
			Value:  48 * time.Second,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "RESUBMISSION_TIMEOUT"),
		},
		cli.DurationFlag{
			Name:   NetworkTimeoutFlagName,
			Usage:  "Timeout for all network operations",
			Value:  10 * time.Second,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "NETWORK_TIMEOUT"),
		},
		cli.DurationFlag{
			Name:   TxSendTimeoutFlagName,
			Usage:  "Timeout for sending transactions. If 0 it is disabled.",
			Value:  0,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "TXMGR_TX_SEND_TIMEOUT"),
		},
		cli.DurationFlag{
			Name:   TxNotInMempoolTimeoutFlagName,
			Usage:  "Timeout for aborting a tx send if the tx does not make it to the mempool.",
			Value:  2 * time.Minute,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "TXMGR_TX_NOT_IN_MEMPOOL_TIMEOUT"),
		},
		cli.DurationFlag{
			Name:   ReceiptQueryIntervalFlagName,
			Usage:  "Frequency to poll for receipts",
			Value:  2 * time.Second,
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "TXMGR_RECEIPT_QUERY_INTERVAL"),
		},
	}
}

type CLIConfig struct {
	RPCURL                    string
	Mnemonic                  string
	HDPath                    string
	PrivateKey                string
	NumConfirmations          uint64
	SafeAbortNonceTooLowCount uint64
	GasLimit                  uint64
	GasPriceGwei              uint64
	ResubmissionTimeout       time.Duration
	ReceiptQueryInterval      time.Duration
	NetworkTimeout            time.Duration
	TxSendTimeout             time.Duration
	TxNotInMempoolTimeout     time.Duration
}

// NewCLIConfig returns the flag defaults, for callers without a cli.Context.
func NewCLIConfig() CLIConfig {
	return CLIConfig{
		HDPath:                    dhcrypto.DefaultHDPathPrefix + "/0",
		NumConfirmations:          1,
		SafeAbortNonceTooLowCount: 3,
		ResubmissionTimeout:       48 * time.Second,
		NetworkTimeout:            10 * time.Second,
		TxNotInMempoolTimeout:     2 * time.Minute,
		ReceiptQueryInterval:      2 * time.Second,
	}
}

// Check validates the timing parameters. Keys and the RPC url may be left empty
// here because the deployment pipeline fills them from the network table.
func (m CLIConfig) Check() error {
	var result *multierror.Error
	if m.NumConfirmations == 0 {
		result = multierror.Append(result, errors.New("NumConfirmations must not be 0"))
	}
	if m.NetworkTimeout == 0 {
		result = multierror.Append(result, errors.New("must provide NetworkTimeout"))
	}
	if m.ResubmissionTimeout == 0 {
		result = multierror.Append(result, errors.New("must provide ResubmissionTimeout"))
	}
	if m.ReceiptQueryInterval == 0 {
		result = multierror.Append(result, errors.New("must provide ReceiptQueryInterval"))
	}
	if m.TxNotInMempoolTimeout == 0 {
		result = multierror.Append(result, errors.New("must provide TxNotInMempoolTimeout"))
	}
	if m.SafeAbortNonceTooLowCount == 0 {
		result = multierror.Append(result, errors.New("SafeAbortNonceTooLowCount must not be 0"))
	}
	if m.PrivateKey != "" && m.Mnemonic != "" {
		result = multierror.Append(result, errors.New("cannot specify both a private key and a mnemonic"))
	}
	return result.ErrorOrNil()
}

func ReadCLIConfig(ctx *cli.Context) CLIConfig {
	return CLIConfig{
		RPCURL:                    ctx.GlobalString(RPCUrlFlagName),
		Mnemonic:                  ctx.GlobalString(MnemonicFlagName),
		HDPath:                    ctx.GlobalString(HDPathFlagName),
		PrivateKey:                ctx.GlobalString(PrivateKeyFlagName),
		NumConfirmations:          ctx.GlobalUint64(NumConfirmationsFlagName),
		SafeAbortNonceTooLowCount: ctx.GlobalUint64(SafeAbortNonceTooLowCountFlagName),
		GasLimit:                  ctx.GlobalUint64(GasLimitFlagName),
		GasPriceGwei:              ctx.GlobalUint64(GasPriceGweiFlagName),
		ResubmissionTimeout:       ctx.GlobalDuration(ResubmissionTimeoutFlagName),
		ReceiptQueryInterval:      ctx.GlobalDuration(ReceiptQueryIntervalFlagName),
		NetworkTimeout:            ctx.GlobalDuration(NetworkTimeoutFlagName),
		TxSendTimeout:             ctx.GlobalDuration(TxSendTimeoutFlagName),
		TxNotInMempoolTimeout:     ctx.GlobalDuration(TxNotInMempoolTimeoutFlagName),
	}
}

// NewConfig dials the node and builds the signer from the key material in cfg.
func NewConfig(cfg CLIConfig, l log.Logger) (Config, error) {
	if err := cfg.Check(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RPCURL == "" {
		return Config{}, errors.New("must provide an RPC url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.NetworkTimeout)
	defer cancel()
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return Config{}, fmt.Errorf("could not dial eth client: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return Config{}, fmt.Errorf("could not dial fetch chain ID: %w", err)
	}

	var acc dhcrypto.Account
	switch {
	case cfg.PrivateKey != "":
		acc, err = dhcrypto.AccountFromPrivateKey(cfg.PrivateKey)
	case cfg.Mnemonic != "":
		acc, err = dhcrypto.AccountFromMnemonic(cfg.Mnemonic, cfg.HDPath)
	default:
		err = errors.New("no private key or mnemonic configured")
	}
	if err != nil {
		return Config{}, fmt.Errorf("could not init signer: %w", err)
	}
	l.Debug("tx manager signer ready", "from", acc.Address, "chainID", chainID)

	return cfg.Config(client, chainID).WithAccount(acc), nil
}

// Config turns the CLI values into a Config around an existing backend. The
// signer is left unset.
func (m CLIConfig) Config(backend ETHBackend, chainID *big.Int) Config {
	conf := Config{
		Backend:                   backend,
		ChainID:                   chainID,
		NumConfirmations:          m.NumConfirmations,
		SafeAbortNonceTooLowCount: m.SafeAbortNonceTooLowCount,
		GasLimit:                  m.GasLimit,
		ResubmissionTimeout:       m.ResubmissionTimeout,
		TxSendTimeout:             m.TxSendTimeout,
		TxNotInMempoolTimeout:     m.TxNotInMempoolTimeout,
		NetworkTimeout:            m.NetworkTimeout,
		ReceiptQueryInterval:      m.ReceiptQueryInterval,
	}
	if m.GasPriceGwei != 0 {
		conf.GasPrice = new(big.Int).Mul(new(big.Int).SetUint64(m.GasPriceGwei), big.NewInt(params.GWei))
	}
	return conf
}

// Config houses parameters for altering the behavior of a SimpleTxManager.
type Config struct {
	Backend ETHBackend
	// ChainID is the chain ID of the network the txs are signed for.
	ChainID *big.Int

	// ResubmissionTimeout is the interval at which, if no previously
	// published transaction has been mined, the signed tx is published again.
	ResubmissionTimeout time.Duration

	// TxSendTimeout is how long to wait for sending a transaction.
	// By default it is unbounded.
	TxSendTimeout time.Duration

	// TxNotInMempoolTimeout is how long to wait before aborting a transaction send if the transaction does not
	// make it to the mempool. If the tx is in the mempool, TxSendTimeout is used instead.
	TxNotInMempoolTimeout time.Duration

	// NetworkTimeout is the allowed duration for a single network request.
	// This is intended to be used for network requests that can be replayed.
	NetworkTimeout time.Duration

	// ReceiptQueryInterval is the interval at which the tx manager will
	// query the backend to check for confirmations after a tx has been published.
	ReceiptQueryInterval time.Duration

	// NumConfirmations specifies how many blocks are need to consider a
	// transaction confirmed.
	NumConfirmations uint64

	// SafeAbortNonceTooLowCount specifies how many ErrNonceTooLow observations
	// are required to give up on a tx at a particular nonce without receiving
	// confirmation.
	SafeAbortNonceTooLowCount uint64

	// GasLimit is a floor for estimated gas limits; zero means the estimate is used.
	GasLimit uint64

	// GasPrice switches to legacy transactions at a fixed price when set.
	GasPrice *big.Int

	// Signer is used to sign transactions.
	Signer dhcrypto.SignerFn
	From   common.Address
}

// WithAccount returns a copy of the config that signs and sends from acc.
func (m Config) WithAccount(acc dhcrypto.Account) Config {
	m.Signer = acc.Signer(m.ChainID)
	m.From = acc.Address
	return m
}

func (m Config) Check() error {
	if m.Backend == nil {
		return errors.New("must provide the Backend")
	}
	if m.NumConfirmations == 0 {
		return errors.New("NumConfirmations must not be 0")
	}
	if m.NetworkTimeout == 0 {
		return errors.New("must provide NetworkTimeout")
	}
	if m.ResubmissionTimeout == 0 {
		return errors.New("must provide ResubmissionTimeout")
	}
	if m.ReceiptQueryInterval == 0 {
		return errors.New("must provide ReceiptQueryInterval")
	}
	if m.TxNotInMempoolTimeout == 0 {
		return errors.New("must provide TxNotInMempoolTimeout")
	}
	if m.SafeAbortNonceTooLowCount == 0 {
		return errors.New("SafeAbortNonceTooLowCount must not be 0")
	}
	if m.Signer == nil {
		return errors.New("must provide the Signer")
	}
	if m.ChainID == nil {
		return errors.New("must provide the ChainID")
	}
	return nil
}
