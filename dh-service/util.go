package dh_service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// PrefixEnvVar returns the env var name for a flag, e.g. ("DH_DEPLOYER", "NETWORK")
// becomes "DH_DEPLOYER_NETWORK".
func PrefixEnvVar(prefix, suffix string) string {
	return prefix + "_" + suffix
}

// WithInterrupt returns a context that is cancelled on SIGINT or SIGTERM.
func WithInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
