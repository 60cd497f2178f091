package deployer

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/flags"
	dhlog "github.com/donatehub/donatehub/dh-service/log"
	"github.com/donatehub/donatehub/dh-service/txmgr"
)

func validConfig() CLIConfig {
	return CLIConfig{
		LogConfig:     dhlog.DefaultCLIConfig(),
		TxMgrConfig:   txmgr.NewCLIConfig(),
		GasReportFile: "gas-report.txt",
	}
}

func TestCheck(t *testing.T) {
	require.NoError(t, validConfig().Check())

	cfg := validConfig()
	cfg.LogConfig.Format = "xml"
	cfg.TxMgrConfig.NumConfirmations = 0
	err := cfg.Check()
	require.ErrorContains(t, err, "unrecognized log format")
	require.ErrorContains(t, err, "NumConfirmations")

	cfg = validConfig()
	cfg.GasReport = true
	cfg.GasReportFile = ""
	require.ErrorContains(t, cfg.Check(), "output file")
}

func TestWithEnv(t *testing.T) {
	env := config.Env{Network: "sepolia", DeploymentsDir: "deployments", ArtifactsDir: "artifacts"}
	cfg := CLIConfig{ArtifactsDir: "build/artifacts"}.WithEnv(env)
	require.Equal(t, "sepolia", cfg.Network)
	require.Equal(t, "deployments", cfg.DeploymentsDir)
	require.Equal(t, "build/artifacts", cfg.ArtifactsDir)
}

func TestSplitTags(t *testing.T) {
	require.Equal(t, []string{"mocks", "DonateHub", "all"}, splitTags([]string{"mocks, DonateHub", "all", " "}))
	require.Nil(t, splitTags(nil))
}

func TestNewConfig(t *testing.T) {
	app := cli.NewApp()
	global := flag.NewFlagSet("dh-deployer", flag.ContinueOnError)
	for _, f := range flags.Flags {
		f.Apply(global)
	}
	require.NoError(t, global.Parse([]string{"--network", "localhost", "--log.level", "debug"}))
	local := flag.NewFlagSet("deploy", flag.ContinueOnError)
	for _, f := range flags.DeployFlags {
		f.Apply(local)
	}
	require.NoError(t, local.Parse([]string{"--tags", "mocks,DonateHub", "--gas-report"}))

	ctx := cli.NewContext(app, local, cli.NewContext(app, global, nil))
	cfg := NewConfig(ctx)
	require.Equal(t, "localhost", cfg.Network)
	require.Equal(t, []string{"mocks", "DonateHub"}, cfg.Tags)
	require.True(t, cfg.GasReport)
	require.Equal(t, "gas-report.txt", cfg.GasReportFile)
	require.Equal(t, "INR", cfg.GasReportCurrency)
	require.Equal(t, "debug", cfg.LogConfig.Level)
	require.EqualValues(t, 1, cfg.TxMgrConfig.NumConfirmations)
	require.NoError(t, cfg.Check())
}
