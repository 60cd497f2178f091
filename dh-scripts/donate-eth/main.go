// donate-eth funds the DonateHub deployment of the network named by DH_NETWORK
// with 0.1 ether from the deployer account.
package main

import (
	"context"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-deployer/pipeline"
	dhservice "github.com/donatehub/donatehub/dh-service"
	dhlog "github.com/donatehub/donatehub/dh-service/log"
	"github.com/donatehub/donatehub/dh-service/txmgr"
	txmetrics "github.com/donatehub/donatehub/dh-service/txmgr/metrics"
)

// 0.1 ether
var donation = new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(10))

func main() {
	l := dhlog.NewLogger(os.Stdout, dhlog.DefaultCLIConfig())
	ctx, cancel := dhservice.WithInterrupt(context.Background())
	err := run(ctx, l)
	cancel()
	if err != nil {
		l.Error("Funding failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, l log.Logger) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	target, err := env.Target(env.Network)
	if err != nil {
		return err
	}
	store, err := deployments.OpenFileStore(env.DeploymentsDir, target.Network.Name)
	if err != nil {
		return err
	}

	penv, client, err := pipeline.Dial(ctx, l, target, txmgr.NewCLIConfig(), &txmetrics.NoopTxMetrics{})
	if err != nil {
		return err
	}
	defer client.Close()
	penv = penv.WithStore(store)

	hub, err := penv.DonateHub("deployer")
	if err != nil {
		return err
	}
	l.Info("Got contract DonateHub at " + hub.Address().Hex())
	minimum, err := hub.MinimumUSD(ctx)
	if err != nil {
		return err
	}
	l.Debug("minimum donation", "usd", new(big.Int).Div(minimum, big.NewInt(params.Ether)))
	l.Info("Funding contract...")
	receipt, err := hub.Fund(ctx, donation)
	if err != nil {
		return err
	}
	l.Info("Funded!", "tx", receipt.TxHash, "block", receipt.BlockNumber)
	return nil
}
