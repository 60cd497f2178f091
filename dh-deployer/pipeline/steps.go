package pipeline

import (
	"context"
	"fmt"

	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
)

const (
	TagAll       = "all"
	TagMocks     = "mocks"
	TagDonateHub = "DonateHub"
)

// DeployMock deploys the mock price feed on the local chain.
var DeployMock = Step{
	Name: "00-deploy-mock",
	Tags: []string{TagAll, TagMocks},
	Run: func(ctx context.Context, env *Env) error {
		if !chaincfg.IsDevelopmentChain(env.ChainID) {
			return nil
		}
		env.Log.Info("Local network detected")
		env.Log.Info("Deploying mock contract...")
		_, err := env.Deploy(ctx, bindings.MockV3AggregatorName, DeployOptions{
			Args: []interface{}{chaincfg.Decimals, chaincfg.InitialAnswer()},
		})
		return err
	},
}

// DeployDonateHub deploys the donation contract against the chain's price feed.
var DeployDonateHub = Step{
	Name:         "01-deploy-donatehub",
	Tags:         []string{TagAll, TagDonateHub},
	Dependencies: []string{TagMocks},
	Run: func(ctx context.Context, env *Env) error {
		feed, err := chaincfg.ResolvePriceFeed(env.ChainID)
		if err != nil {
			return err
		}
		priceFeed := feed.Address
		if feed.Mock {
			mock, err := env.Get(bindings.MockV3AggregatorName)
			if err != nil {
				return fmt.Errorf("mock price feed: %w", err)
			}
			priceFeed = mock.Address
		}

		rec, err := env.Deploy(ctx, bindings.DonateHubName, DeployOptions{
			Args:          []interface{}{priceFeed},
			Confirmations: env.Network.BlockConfirmations,
		})
		if err != nil {
			return err
		}
		env.Log.Info(fmt.Sprintf("Contract deployed at address: %s", rec.Address))

		if env.Network.Live() && env.Verifier != nil {
			env.Verifier.VerifyBestEffort(ctx, bindings.DonateHubName, rec)
		}
		return nil
	},
}

// DefaultSteps are the deployment steps of the project, in registration order.
func DefaultSteps() []Step {
	return []Step{DeployMock, DeployDonateHub}
}

func NewDefaultRunner() *Runner {
	return NewRunner(DefaultSteps()...)
}
