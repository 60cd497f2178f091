package deployer

import (
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli"

	"github.com/donatehub/donatehub/dh-deployer/config"
	"github.com/donatehub/donatehub/dh-deployer/flags"
	"github.com/donatehub/donatehub/dh-deployer/gasreport"
	dhlog "github.com/donatehub/donatehub/dh-service/log"
	dhmetrics "github.com/donatehub/donatehub/dh-service/metrics"
	"github.com/donatehub/donatehub/dh-service/txmgr"
)

type CLIConfig struct {
	// Network, DeploymentsDir and ArtifactsDir fall back to the environment
	// when left empty.
	Network        string
	DeploymentsDir string
	ArtifactsDir   string
	EnvFiles       []string

	Tags              []string
	GasReport         bool
	GasReportFile     string
	GasReportCurrency string

	Contract string

	LogConfig     dhlog.CLIConfig
	MetricsConfig dhmetrics.CLIConfig
	TxMgrConfig   txmgr.CLIConfig
}

func (c CLIConfig) Check() error {
	var result *multierror.Error
	if err := c.LogConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.TxMgrConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.GasReport && c.GasReportFile == "" {
		result = multierror.Append(result, errors.New("gas report needs an output file"))
	}
	return result.ErrorOrNil()
}

// WithEnv fills the settings left empty on the command line from the
// environment.
func (c CLIConfig) WithEnv(env config.Env) CLIConfig {
	if c.Network == "" {
		c.Network = env.Network
	}
	if c.DeploymentsDir == "" {
		c.DeploymentsDir = env.DeploymentsDir
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = env.ArtifactsDir
	}
	return c
}

// NewConfig parses the global flags and those of the running command.
func NewConfig(ctx *cli.Context) CLIConfig {
	cfg := CLIConfig{
		Network:        ctx.GlobalString(flags.NetworkFlag.Name),
		DeploymentsDir: ctx.GlobalString(flags.DeploymentsDirFlag.Name),
		ArtifactsDir:   ctx.GlobalString(flags.ArtifactsDirFlag.Name),
		EnvFiles:       ctx.GlobalStringSlice(flags.EnvFileFlag.Name),

		Tags:              splitTags(ctx.StringSlice(flags.TagsFlag.Name)),
		GasReport:         ctx.Bool(flags.GasReportFlag.Name),
		GasReportFile:     ctx.String(flags.GasReportFileFlag.Name),
		GasReportCurrency: ctx.String(flags.GasReportCurrencyFlag.Name),

		Contract: ctx.String(flags.ContractFlag.Name),

		LogConfig:     dhlog.ReadCLIConfig(ctx),
		MetricsConfig: dhmetrics.ReadCLIConfig(ctx),
		TxMgrConfig:   txmgr.ReadCLIConfig(ctx),
	}
	if cfg.GasReportFile == "" {
		cfg.GasReportFile = gasreport.DefaultOutputFile
	}
	if cfg.GasReportCurrency == "" {
		cfg.GasReportCurrency = gasreport.DefaultCurrency
	}
	return cfg
}

// splitTags accepts both repeated flags and comma separated lists.
func splitTags(in []string) []string {
	var out []string
	for _, s := range in {
		for _, tag := range strings.Split(s, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}
