package dh_e2e

import (
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/deployments"
	"github.com/donatehub/donatehub/dh-deployer/pipeline"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	"github.com/donatehub/donatehub/dh-service/testlog"
	txmetrics "github.com/donatehub/donatehub/dh-service/txmgr/metrics"
)

// setupStaging binds the deployment recorded for DH_STAGING_NETWORK. Nothing is
// deployed here.
func setupStaging(t *testing.T) (*pipeline.Env, *bindings.DonateHub) {
	name := os.Getenv("DH_STAGING_NETWORK")
	if name == "" || chaincfg.IsDevelopmentNetwork(name) {
		t.Skip("DH_STAGING_NETWORK does not name a live network")
	}
	l := testlog.Logger(t, log.LvlInfo)
	env, err := config.LoadEnv("../.env")
	require.NoError(t, err)
	target, err := env.Target(name)
	require.NoError(t, err)
	store, err := deployments.OpenFileStore(envOr("DH_E2E_DEPLOYMENTS_DIR", "../"+env.DeploymentsDir), name)
	require.NoError(t, err)

	penv, client, err := pipeline.Dial(testContext(t), l, target, txConfig(), &txmetrics.NoopTxMetrics{})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	penv = penv.WithStore(store)
	if gasReport != nil {
		penv.Gas = gasReport
	}
	hub, err := penv.DonateHub("deployer")
	require.NoError(t, err)
	return penv, hub
}

// The cases share the live contract and run in order.
func TestStaging(t *testing.T) {
	env, hub := setupStaging(t)

	t.Run("initial balance is zero", func(t *testing.T) {
		bal, err := hub.Balance(testContext(t))
		require.NoError(t, err)
		require.Zero(t, bal.Sign())
	})

	t.Run("funding updates the balance", func(t *testing.T) {
		_, err := hub.Fund(testContext(t), sendValue)
		require.NoError(t, err)
		bal, err := hub.Balance(testContext(t))
		require.NoError(t, err)
		require.Equal(t, sendValue.String(), bal.String())
	})

	t.Run("owner can withdraw", func(t *testing.T) {
		owner, err := env.Account("deployer")
		require.NoError(t, err)
		startContract := balance(t, env, hub.Address())
		startOwner := balance(t, env, owner.From())

		receipt, err := hub.Withdraw(testContext(t))
		require.NoError(t, err)

		require.Zero(t, balance(t, env, hub.Address()).Sign())
		before := new(big.Int).Add(startContract, startOwner)
		after := new(big.Int).Add(balance(t, env, owner.From()), bindings.GasCost(receipt))
		require.Equal(t, before.String(), after.String())
	})
}
