// Package config loads crabalign settings from an optional YAML file.
//
// Command-line flags take precedence over the file; the CRABALIGN_REDIS_URL
// and CRABALIGN_DATABASE_URL environment variables take precedence over the
// store URLs in the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/cwbudde/crabalign/internal/store"
	"gopkg.in/yaml.v3"
)

// Config is the full settings tree.
type Config struct {
	LogLevel string       `yaml:"logLevel"`
	Solve    SolveConfig  `yaml:"solve"`
	Store    StoreConfig  `yaml:"store"`
	Server   ServerConfig `yaml:"server"`
}

// SolveConfig holds defaults for the solve command and server jobs.
type SolveConfig struct {
	CostModel string       `yaml:"costModel"`
	Strategy  string       `yaml:"strategy"`
	Verbose   bool         `yaml:"verbose"`
	Output    string       `yaml:"output"` // text or json
	Workers   int          `yaml:"workers"`
	Mayfly    MayflyConfig `yaml:"mayfly"`
}

// MayflyConfig tunes the metaheuristic strategy.
type MayflyConfig struct {
	Iters   int   `yaml:"iters"`
	PopSize int   `yaml:"popSize"`
	Seed    int64 `yaml:"seed"`
}

// StoreConfig selects the result backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	DataDir     string `yaml:"dataDir"`
	RedisURL    string `yaml:"redisURL"`
	DatabaseURL string `yaml:"databaseURL"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimit       float64       `yaml:"rateLimit"` // Requests per second; 0 disables limiting
	Burst           int           `yaml:"burst"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	JobTTL          time.Duration `yaml:"jobTTL"` // How long finished jobs stay queryable; 0 keeps them
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel: "info",
		Solve: SolveConfig{
			CostModel: "linear",
			Strategy:  string(align.StrategyScan),
			Output:    "text",
			Mayfly: MayflyConfig{
				Iters:   opt.DefaultIters,
				PopSize: opt.DefaultPopSize,
				Seed:    opt.DefaultSeed,
			},
		},
		Store: StoreConfig{
			Backend: store.BackendFS,
			DataDir: "./data",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       20,
			Burst:           40,
			ShutdownTimeout: 10 * time.Second,
			JobTTL:          time.Hour,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("CRABALIGN_REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("CRABALIGN_DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := align.ParseCostModel(c.Solve.CostModel); err != nil {
		errs = append(errs, fmt.Errorf("solve.costModel: %w", err))
	}
	if _, err := align.ParseStrategy(c.Solve.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("solve.strategy: %w", err))
	}
	if c.Solve.Output != "text" && c.Solve.Output != "json" {
		errs = append(errs, fmt.Errorf("solve.output: must be text or json, got %q", c.Solve.Output))
	}
	if c.Solve.Workers < 0 {
		errs = append(errs, errors.New("solve.workers: cannot be negative"))
	}
	if c.Solve.Mayfly.PopSize < 20 {
		errs = append(errs, fmt.Errorf("solve.mayfly.popSize: must be at least 20, got %d", c.Solve.Mayfly.PopSize))
	}
	if c.Solve.Mayfly.Iters <= 0 {
		errs = append(errs, errors.New("solve.mayfly.iters: must be positive"))
	}

	switch c.Store.Backend {
	case store.BackendFS:
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.dataDir: required for fs backend"))
		}
	case store.BackendRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redisURL: required for redis backend"))
		}
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.databaseURL: required for postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}

	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		errs = append(errs, errors.New("server: rateLimit and burst cannot be negative"))
	}
	if c.Server.JobTTL < 0 {
		errs = append(errs, errors.New("server.jobTTL: cannot be negative"))
	}

	return errors.Join(errs...)
}

// StoreOptions converts the store section for store.Open.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Store.Backend,
		DataDir:     c.Store.DataDir,
		RedisURL:    c.Store.RedisURL,
		DatabaseURL: c.Store.DatabaseURL,
	}
}
