package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/crabalign/internal/config"
	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/cwbudde/crabalign/internal/store"
	"github.com/spf13/cobra"
)

var (
	logLevel     string
	configPath   string
	dataDir      string
	storeBackend string
	logger       *slog.Logger

	// cfg is loaded before every command runs
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "crabalign",
	Short: "Find the cheapest position to line up a crab swarm",
	Long: `crabalign scans every candidate position between the leftmost and the
rightmost crab and reports the one that needs the least total fuel,
under a linear or a triangular fuel model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		// Explicit flags win over the config file
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.Store.DataDir = dataDir
		}
		if cmd.Flags().Changed("store") {
			cfg.Store.Backend = storeBackend
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Setup logger
		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Results go to stdout, so logs use stderr
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for the fs result store and traces")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", store.BackendFS, "Result store backend (fs, redis, postgres)")
}

// openStore opens the configured result store
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return st, nil
}

// newOptimizer builds the mayfly optimizer from the configured settings
func newOptimizer() opt.Optimizer {
	m := cfg.Solve.Mayfly
	return opt.NewMayfly(m.Iters, m.PopSize, m.Seed)
}
