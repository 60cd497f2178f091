package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"

	dhservice "github.com/donatehub/donatehub/dh-service"
)

const (
	LevelFlagName  = "log.level"
	FormatFlagName = "log.format"
	ColorFlagName  = "log.color"
)

func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   LevelFlagName,
			Usage:  "The lowest log level that will be output",
			Value:  "info",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "LOG_LEVEL"),
		},
		cli.StringFlag{
			Name:   FormatFlagName,
			Usage:  "Format the log output. Supported formats: 'text', 'terminal', 'logfmt', 'json'",
			Value:  "text",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "LOG_FORMAT"),
		},
		cli.BoolFlag{
			Name:   ColorFlagName,
			Usage:  "Color the log output if in terminal mode",
			EnvVar: dhservice.PrefixEnvVar(envPrefix, "LOG_COLOR"),
		},
	}
}

type CLIConfig struct {
	Level  string
	Color  bool
	Format string
}

func (cfg CLIConfig) Check() error {
	switch cfg.Format {
	case "json", "json-pretty", "terminal", "text", "logfmt":
	default:
		return fmt.Errorf("unrecognized log format: %s", cfg.Format)
	}

	level := strings.TrimSpace(cfg.Level)
	if _, err := log.LvlFromString(level); err != nil {
		return fmt.Errorf("unrecognized log level: %w", err)
	}
	return nil
}

// DefaultCLIConfig is what the scripts without flags log with.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		Level:  "info",
		Format: "text",
		Color:  isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func ReadCLIConfig(ctx *cli.Context) CLIConfig {
	cfg := CLIConfig{
		Level:  ctx.GlobalString(LevelFlagName),
		Format: ctx.GlobalString(FormatFlagName),
		Color:  ctx.GlobalBool(ColorFlagName),
	}
	if !ctx.GlobalIsSet(ColorFlagName) {
		cfg.Color = isatty.IsTerminal(os.Stdout.Fd())
	}
	return cfg
}

// NewLogger builds the root logger for a command. Invalid levels fall back to info.
func NewLogger(w io.Writer, cfg CLIConfig) log.Logger {
	handler := log.StreamHandler(w, Format(cfg.Format, cfg.Color))
	handler = log.SyncHandler(handler)
	lvl, err := log.LvlFromString(strings.TrimSpace(cfg.Level))
	if err != nil {
		lvl = log.LvlInfo
	}
	handler = log.LvlFilterHandler(lvl, handler)
	logger := log.New()
	logger.SetHandler(handler)
	return logger
}

// Format turns a format string and color bool into a log.Format.
func Format(lf string, color bool) log.Format {
	switch lf {
	case "json":
		return log.JSONFormat()
	case "json-pretty":
		return log.JSONFormatEx(true, true)
	case "text":
		if color {
			return log.TerminalFormat(true)
		}
		return log.LogfmtFormat()
	case "terminal":
		return log.TerminalFormat(color)
	case "logfmt":
		return log.LogfmtFormat()
	default:
		panic(fmt.Errorf("failed to create log format: %s", lf))
	}
}
