package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/config"
	"github.com/ziadkadry99/docqa/internal/logging"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docqa init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Log, verbose))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// openApp loads the config and builds the components named by want. The
// caller must Close the returned app.
func openApp(ctx context.Context, want app.Components) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, logger, want)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// truncate shortens s to n runes, adding an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
