// Package dh_e2e drives the DonateHub contract on a running node.
//
// The unit suite needs a development node on chain 31337 (for example
// `npx hardhat node`) and the compiled artifacts; it is skipped when either is
// missing. DH_E2E_RPC_URL and DH_E2E_ARTIFACTS_DIR override where they are
// looked up. With DH_GAS_REPORT set, the gas used by every deployment and
// contract call is written to gas-report.txt after the run. The staging suite runs against the recorded deployment of the
// network named by DH_STAGING_NETWORK.
package dh_e2e

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/donatehub/donatehub/dh-deployer/artifacts"
	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-deployer/gasreport"
	"github.com/donatehub/donatehub/dh-deployer/pipeline"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	"github.com/donatehub/donatehub/dh-service/testlog"
	"github.com/donatehub/donatehub/dh-service/txmgr"
	txmetrics "github.com/donatehub/donatehub/dh-service/txmgr/metrics"
)

// gasReport collects the gas of the whole run when DH_GAS_REPORT is set.
var gasReport *gasreport.Report

// sendValue is what every funder sends.
var sendValue = big.NewInt(params.Ether)

type TestConfig struct {
	RPCURL       string
	ArtifactsDir string
	Timeout      time.Duration
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

var testConfig = TestConfig{
	RPCURL:       envOr("DH_E2E_RPC_URL", "http://127.0.0.1:8545"),
	ArtifactsDir: envOr("DH_E2E_ARTIFACTS_DIR", "../artifacts"),
	Timeout:      time.Minute,
}

func txConfig() txmgr.CLIConfig {
	cfg := txmgr.NewCLIConfig()
	cfg.ReceiptQueryInterval = 50 * time.Millisecond
	cfg.NetworkTimeout = 5 * time.Second
	return cfg
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testConfig.Timeout)
	t.Cleanup(cancel)
	return ctx
}

// setupLocal connects to the development node with the standard accounts.
// Deployments are recorded in memory so every fixture starts from scratch.
func setupLocal(t *testing.T) *pipeline.Env {
	l := testlog.Logger(t, log.LvlInfo)
	loader := artifacts.NewLoader(testConfig.ArtifactsDir)
	if _, err := loader.Artifact(bindings.DonateHubName); err != nil {
		t.Skipf("no compiled artifacts in %s: %v", testConfig.ArtifactsDir, err)
	}

	target, err := config.Env{}.Target("localhost")
	require.NoError(t, err)
	cfg := txConfig()
	cfg.RPCURL = testConfig.RPCURL
	env, client, err := pipeline.Dial(testContext(t), l, target, cfg, &txmetrics.NoopTxMetrics{})
	if err != nil {
		t.Skipf("no development node at %s: %v", testConfig.RPCURL, err)
	}
	t.Cleanup(client.Close)
	require.Equal(t, uint64(chaincfg.LocalChainID), env.ChainID)

	env.Store = deployments.NewMemoryStore()
	env.Artifacts = loader
	if gasReport != nil {
		env.Gas = gasReport
	}
	return env
}

// fixture deploys everything tagged "all" into a fresh record set and returns
// the contracts bound to the deployer.
func fixture(t *testing.T, env *pipeline.Env) (*pipeline.Env, *bindings.DonateHub, *bindings.MockV3Aggregator) {
	fresh, err := pipeline.NewDefaultRunner().Fixture(testContext(t), env, pipeline.TagAll)
	require.NoError(t, err)
	hub, err := fresh.DonateHub("deployer")
	require.NoError(t, err)
	mock, err := fresh.MockV3Aggregator("deployer")
	require.NoError(t, err)
	return fresh, hub, mock
}

func balance(t *testing.T, env *pipeline.Env, addr common.Address) *big.Int {
	bal, err := env.Backend.BalanceAt(testContext(t), addr, nil)
	require.NoError(t, err)
	return bal
}
