// Package deployer implements the dh-deployer commands.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"github.com/donatehub/donatehub/dh-deployer/artifacts"
	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-deployer/gasreport"
	"github.com/donatehub/donatehub/dh-deployer/pipeline"
	"github.com/donatehub/donatehub/dh-deployer/verify"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	dhservice "github.com/donatehub/donatehub/dh-service"
	dhlog "github.com/donatehub/donatehub/dh-service/log"
	dhmetrics "github.com/donatehub/donatehub/dh-service/metrics"
	txmetrics "github.com/donatehub/donatehub/dh-service/txmgr/metrics"
)

const metricsNamespace = "dh_deployer"

// service is what every command needs before touching the network.
type service struct {
	cfg      CLIConfig
	env      config.Env
	log      log.Logger
	registry *prometheus.Registry
	metrics  *txmetrics.TxMetrics
	server   *dhmetrics.Server
}

func setup(cliCtx *cli.Context) (*service, error) {
	cfg := NewConfig(cliCtx)
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid CLI flags: %w", err)
	}
	l := dhlog.NewLogger(os.Stdout, cfg.LogConfig)

	env, err := config.LoadEnv(cfg.EnvFiles...)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithEnv(env)
	l.Debug("loaded environment", "env", fmt.Sprintf("%+v", env.Masked()))

	s := &service{cfg: cfg, env: env, log: l, registry: dhmetrics.NewRegistry()}
	m := txmetrics.MakeTxMetrics(metricsNamespace, dhmetrics.With(s.registry))
	s.metrics = &m
	if cfg.MetricsConfig.Enabled {
		l.Info("starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
		s.server, err = dhmetrics.StartServer(s.registry, cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	return s, nil
}

func (s *service) close() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Stop(ctx); err != nil {
		s.log.Warn("failed to stop metrics server", "err", err)
	}
}

// verifier returns nil when the network has no explorer or no key is set.
func (s *service) verifier(network chaincfg.Network, arts artifacts.Source) *verify.Client {
	if network.ExplorerAPIURL == "" {
		return nil
	}
	if s.env.EtherscanAPIKey == "" {
		s.log.Warn("ETHERSCAN_API is not set, contracts will not be verified", "network", network.Name)
		return nil
	}
	vcfg := verify.DefaultConfig(network.ExplorerAPIURL, s.env.EtherscanAPIKey)
	vcfg.Progress = os.Stderr
	return verify.NewClient(s.log.New("service", "verify"), vcfg, arts)
}

// Deploy runs the deployment steps selected by --tags against --network.
func Deploy(cliCtx *cli.Context) error {
	s, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := dhservice.WithInterrupt(context.Background())
	defer cancel()

	target, err := s.env.Target(s.cfg.Network)
	if err != nil {
		return err
	}
	l := s.log.New("network", target.Network.Name)
	env, client, err := pipeline.Dial(ctx, l, target, s.cfg.TxMgrConfig, s.metrics)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := deployments.NewFileStore(s.cfg.DeploymentsDir, target.Network.Name, env.ChainID)
	if err != nil {
		return err
	}
	env.Store = store
	env.Artifacts = artifacts.NewLoader(s.cfg.ArtifactsDir)
	if v := s.verifier(target.Network, env.Artifacts); v != nil {
		env.Verifier = v
	}
	var report *gasreport.Report
	if s.cfg.GasReport {
		report = gasreport.NewReport()
		env.Gas = report
	}

	l.Info("running deployment", "chain_id", env.ChainID, "tags", s.cfg.Tags, "dir", store.Dir())
	if err := pipeline.NewDefaultRunner().Run(ctx, env, s.cfg.Tags...); err != nil {
		return err
	}
	if report != nil {
		return s.writeGasReport(ctx, client, target, report)
	}
	return nil
}

func (s *service) writeGasReport(ctx context.Context, client *ethclient.Client, target config.Target, report *gasreport.Report) error {
	pricing := gasreport.Pricing{GasPrice: target.Network.GasPrice, Currency: s.cfg.GasReportCurrency}
	if pricing.GasPrice == nil {
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			s.log.Warn("could not fetch gas price for the gas report", "err", err)
		}
		pricing.GasPrice = price
	}
	if s.env.CoinMarketCapAPIKey != "" {
		quotes := gasreport.NewQuoteClient("", s.env.CoinMarketCapAPIKey)
		price, err := quotes.Price(ctx, gasreport.TokenSymbol, s.cfg.GasReportCurrency)
		if err != nil {
			s.log.Warn("could not fetch token price for the gas report", "err", err)
		}
		pricing.TokenPrice = price
	}
	if err := report.WriteFile(s.cfg.GasReportFile, pricing); err != nil {
		return err
	}
	s.log.Info("wrote gas report", "file", s.cfg.GasReportFile, "gas_price", gweiString(pricing.GasPrice))
	return nil
}

func gweiString(wei *big.Int) string {
	if wei == nil {
		return "unknown"
	}
	return new(big.Int).Div(wei, big.NewInt(1e9)).String() + " gwei"
}

// Verify submits the source of a recorded deployment to the network's explorer.
func Verify(cliCtx *cli.Context) error {
	s, err := setup(cliCtx)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := dhservice.WithInterrupt(context.Background())
	defer cancel()

	network, err := chaincfg.LookupNetwork(s.cfg.Network)
	if err != nil {
		return err
	}
	if network.ExplorerAPIURL == "" {
		return fmt.Errorf("network %s has no block explorer", network.Name)
	}
	store, err := deployments.OpenFileStore(s.cfg.DeploymentsDir, network.Name)
	if err != nil {
		return err
	}
	rec, err := store.Get(s.cfg.Contract)
	if errors.Is(err, deployments.ErrNotFound) {
		return fmt.Errorf("%s is not deployed on %s", s.cfg.Contract, network.Name)
	} else if err != nil {
		return err
	}
	v := s.verifier(network, artifacts.NewLoader(s.cfg.ArtifactsDir))
	if v == nil {
		return errors.New("ETHERSCAN_API must be set to verify contracts")
	}
	if err := v.Verify(ctx, s.cfg.Contract, rec); err != nil {
		return err
	}
	s.log.Info("contract verified", "contract", s.cfg.Contract, "address", rec.Address,
		"url", fmt.Sprintf("%s/address/%s#code", network.ExplorerURL, rec.Address))
	return nil
}
