// Package main runs the operational side of the rarity engine.
//
// Usage:
//
//	rarityd serve   - ensure the content index, serve /health and /metrics
//	rarityd check   - ensure the content index, print component health and exit
//
// Configuration is read from config/{ENV}.yaml (ENV defaults to local).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/config"
	logpkg "github.com/kailas-cloud/rarity/internal/logger"
	"github.com/kailas-cloud/rarity/internal/metrics"
	"github.com/kailas-cloud/rarity/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	root := &cobra.Command{
		Use:           "rarityd",
		Short:         "Uniqueness percentile and tier engine",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "config environment (config/{env}.yaml)")

	root.AddCommand(newServeCmd(&env), newCheckCmd(&env))
	return root
}

// bootstrap loads config and the logger and registers metrics (no init()).
func bootstrap(env string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterProviderMetrics()
	metrics.RegisterUniquenessMetrics()
	return cfg, logger, nil
}
