package dh_e2e

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-deployer/pipeline"
)

// extraFunders is how many accounts besides the deployer fund the contract.
const extraFunders = 6

type withdrawFn func(hub *bindings.DonateHub, ctx context.Context) (*types.Receipt, error)

var withdrawals = map[string]withdrawFn{
	"withdraw":        (*bindings.DonateHub).Withdraw,
	"cheaperWithdraw": (*bindings.DonateHub).CheaperWithdraw,
}

func TestConstructorSetsPriceFeed(t *testing.T) {
	env := setupLocal(t)
	_, hub, mock := fixture(t, env)

	feed, err := hub.GetPriceFeed(testContext(t))
	require.NoError(t, err)
	require.Equal(t, mock.Address(), feed)

	owner, err := hub.GetOwner(testContext(t))
	require.NoError(t, err)
	deployer, err := env.Account("deployer")
	require.NoError(t, err)
	require.Equal(t, deployer.From(), owner)
}

func TestMockPriceFeed(t *testing.T) {
	env := setupLocal(t)
	_, _, mock := fixture(t, env)

	decimals, err := mock.Decimals(testContext(t))
	require.NoError(t, err)
	require.EqualValues(t, 8, decimals)
	answer, err := mock.LatestAnswer(testContext(t))
	require.NoError(t, err)
	require.Equal(t, "200000000000", answer.String())
}

func TestFundRequiresMinimum(t *testing.T) {
	env := setupLocal(t)
	_, hub, _ := fixture(t, env)

	_, err := hub.Fund(testContext(t), nil)
	require.Error(t, err)
	require.True(t, bindings.IsRevert(err, bindings.NotEnoughETHReason), "unexpected error: %v", err)
}

func TestFundRecordsFunder(t *testing.T) {
	env := setupLocal(t)
	_, hub, _ := fixture(t, env)
	deployer, err := env.Account("deployer")
	require.NoError(t, err)

	_, err = hub.Fund(testContext(t), sendValue)
	require.NoError(t, err)

	amount, err := hub.GetAddressToAmountFunded(testContext(t), deployer.From())
	require.NoError(t, err)
	require.Equal(t, sendValue.String(), amount.String())

	funders, err := hub.GetFundersArray(testContext(t))
	require.NoError(t, err)
	require.Equal(t, []common.Address{deployer.From()}, funders)
}

// fundWithExtraFunders funds from the deployer and the next accounts, the
// way a crowd of donors would.
func fundWithExtraFunders(t *testing.T, env *pipeline.Env, hub *bindings.DonateHub) {
	require.Greater(t, len(env.Signers), extraFunders)
	for i := 1; i <= extraFunders; i++ {
		_, err := hub.Connect(env.Signers[i]).Fund(testContext(t), sendValue)
		require.NoError(t, err)
	}
}

func TestWithdraw(t *testing.T) {
	for name, withdraw := range withdrawals {
		withdraw := withdraw
		t.Run(name, func(t *testing.T) {
			t.Run("single funder", func(t *testing.T) {
				env := setupLocal(t)
				_, hub, _ := fixture(t, env)
				_, err := hub.Fund(testContext(t), sendValue)
				require.NoError(t, err)
				owner, err := env.Account("deployer")
				require.NoError(t, err)

				startContract := balance(t, env, hub.Address())
				startOwner := balance(t, env, owner.From())
				receipt, err := withdraw(hub, testContext(t))
				require.NoError(t, err)
				endContract := balance(t, env, hub.Address())
				endOwner := balance(t, env, owner.From())

				require.Zero(t, endContract.Sign())
				before := new(big.Int).Add(startContract, startOwner)
				after := new(big.Int).Add(endOwner, bindings.GasCost(receipt))
				require.Equal(t, before.String(), after.String())
			})

			t.Run("multiple funders", func(t *testing.T) {
				env := setupLocal(t)
				_, hub, _ := fixture(t, env)
				_, err := hub.Fund(testContext(t), sendValue)
				require.NoError(t, err)
				fundWithExtraFunders(t, env, hub)

				want := new(big.Int).Mul(sendValue, big.NewInt(extraFunders+1))
				got, err := hub.Balance(testContext(t))
				require.NoError(t, err)
				t.Logf("DonateHub balance: %s", got)
				require.Equal(t, want.String(), got.String())
			})

			t.Run("only owner", func(t *testing.T) {
				env := setupLocal(t)
				_, hub, _ := fixture(t, env)
				_, err := hub.Fund(testContext(t), sendValue)
				require.NoError(t, err)

				attacker := hub.Connect(env.Signers[1])
				_, err = withdraw(attacker, testContext(t))
				require.Error(t, err)
				require.True(t, bindings.IsRevert(err, bindings.NotOwnerError), "unexpected error: %v", err)
			})

			t.Run("resets funders", func(t *testing.T) {
				env := setupLocal(t)
				_, hub, _ := fixture(t, env)
				_, err := hub.Fund(testContext(t), sendValue)
				require.NoError(t, err)
				fundWithExtraFunders(t, env, hub)

				funders, err := hub.GetFundersArray(testContext(t))
				require.NoError(t, err)
				require.Len(t, funders, extraFunders+1)
				for i := 0; i <= extraFunders; i++ {
					require.Equal(t, env.Signers[i].From(), funders[i])
					amount, err := hub.GetAddressToAmountFunded(testContext(t), env.Signers[i].From())
					require.NoError(t, err)
					require.Equal(t, sendValue.String(), amount.String())
				}

				_, err = withdraw(hub, testContext(t))
				require.NoError(t, err)

				bal, err := hub.Balance(testContext(t))
				require.NoError(t, err)
				require.Zero(t, bal.Sign())

				funders, err = hub.GetFundersArray(testContext(t))
				require.NoError(t, err)
				require.Empty(t, funders)
				for i := 0; i <= extraFunders; i++ {
					amount, err := hub.GetAddressToAmountFunded(testContext(t), env.Signers[i].From())
					require.NoError(t, err)
					require.Zero(t, amount.Sign())
				}
			})
		})
	}
}

// Deploying twice against the same records reuses the contracts.
func TestRedeployIsIdempotent(t *testing.T) {
	env := setupLocal(t)
	fresh, hub, _ := fixture(t, env)

	require.NoError(t, pipeline.NewDefaultRunner().Run(testContext(t), fresh, pipeline.TagAll))
	again, err := fresh.DonateHub("deployer")
	require.NoError(t, err)
	require.Equal(t, hub.Address(), again.Address())

	rec, err := fresh.Get(bindings.DonateHubName)
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.NumDeployments)
}
