package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/cmd/converge/internal/incremental"
	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/cycle"
)

// loadConfig loads the configuration for --root and applies flag
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.root)
	if err != nil {
		return nil, err
	}
	if globalFlags.noLock {
		cfg.Cycle.Lock = false
	}
	if globalFlags.testTimeout > 0 {
		cfg.Smoke.TestTimeout = globalFlags.testTimeout
	}
	return cfg, nil
}

// openEngine builds an engine whose "index" change source is the
// fingerprint tracker, refreshed after every manifest rebuild.
func openEngine() (*cycle.Engine, *incremental.Tracker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	tracker := incremental.NewTracker(cfg)
	e, err := cycle.New(cfg,
		cycle.WithLogger(log.Logger()),
		cycle.WithNamedSource(incremental.SourceName, tracker),
		cycle.WithRefresher(tracker.Refresh),
	)
	if err != nil {
		return nil, nil, err
	}
	return e, tracker, nil
}

// signalContext is cancelled on interrupt, termination or hangup.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
