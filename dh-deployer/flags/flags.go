package flags

import (
	"strings"

	"github.com/urfave/cli"

	"github.com/donatehub/donatehub/dh-deployer/bindings"
	"github.com/donatehub/donatehub/dh-node/chaincfg"
	dhservice "github.com/donatehub/donatehub/dh-service"
	dhlog "github.com/donatehub/donatehub/dh-service/log"
	dhmetrics "github.com/donatehub/donatehub/dh-service/metrics"
	"github.com/donatehub/donatehub/dh-service/txmgr"
)

const envVarPrefix = "DH_DEPLOYER"

func prefixEnvVar(name string) string {
	return dhservice.PrefixEnvVar(envVarPrefix, name)
}

var (
	NetworkFlag = cli.StringFlag{
		Name:   "network",
		Usage:  "Network to run against, one of: " + strings.Join(chaincfg.NetworkNames(), ", ") + ". Defaults to DH_NETWORK",
		EnvVar: prefixEnvVar("NETWORK"),
	}
	DeploymentsDirFlag = cli.StringFlag{
		Name:   "deployments-dir",
		Usage:  "Directory holding the deployment records of every network. Defaults to DH_DEPLOYMENTS_DIR",
		EnvVar: prefixEnvVar("DEPLOYMENTS_DIR"),
	}
	ArtifactsDirFlag = cli.StringFlag{
		Name:   "artifacts-dir",
		Usage:  "Directory of the compiled contract artifacts. Defaults to DH_ARTIFACTS_DIR",
		EnvVar: prefixEnvVar("ARTIFACTS_DIR"),
	}
	EnvFileFlag = cli.StringSliceFlag{
		Name:   "env-file",
		Usage:  "Dotenv files to load before reading the environment. Defaults to .env",
		EnvVar: prefixEnvVar("ENV_FILE"),
	}
)

// deploy
var (
	TagsFlag = cli.StringSliceFlag{
		Name:   "tags",
		Usage:  "Only run the steps carrying one of these tags, plus their dependencies",
		EnvVar: prefixEnvVar("TAGS"),
	}
	GasReportFlag = cli.BoolFlag{
		Name:   "gas-report",
		Usage:  "Write the gas used by the deployment to gas-report.txt",
		EnvVar: prefixEnvVar("GAS_REPORT"),
	}
	GasReportFileFlag = cli.StringFlag{
		Name:   "gas-report.file",
		Usage:  "File the gas report is written to",
		Value:  "gas-report.txt",
		EnvVar: prefixEnvVar("GAS_REPORT_FILE"),
	}
	GasReportCurrencyFlag = cli.StringFlag{
		Name:   "gas-report.currency",
		Usage:  "Fiat currency of the gas report costs, priced with COINMARKETCAP_API",
		Value:  "INR",
		EnvVar: prefixEnvVar("GAS_REPORT_CURRENCY"),
	}
)

// verify
var (
	ContractFlag = cli.StringFlag{
		Name:   "contract",
		Usage:  "Name of the deployment to verify",
		Value:  bindings.DonateHubName,
		EnvVar: prefixEnvVar("CONTRACT"),
	}
)

var globalFlags = []cli.Flag{
	NetworkFlag,
	DeploymentsDirFlag,
	ArtifactsDirFlag,
	EnvFileFlag,
}

// Flags contains the list of global configuration options available to the binary.
var Flags []cli.Flag

var DeployFlags = []cli.Flag{
	TagsFlag,
	GasReportFlag,
	GasReportFileFlag,
	GasReportCurrencyFlag,
}

var VerifyFlags = []cli.Flag{
	ContractFlag,
}

func init() {
	Flags = append(Flags, globalFlags...)
	Flags = append(Flags, dhlog.CLIFlags(envVarPrefix)...)
	Flags = append(Flags, dhmetrics.CLIFlags(envVarPrefix)...)
	Flags = append(Flags, txmgr.CLIFlags(envVarPrefix)...)
}
