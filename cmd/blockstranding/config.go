// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/nrdxhq/blockstranding/internal/delegation"
	"github.com/nrdxhq/blockstranding/internal/xdg"
)

// Default values for global flags.
const (
	defaultRollupID    = "rollup-1"
	defaultLogFormat   = "text"
	defaultLogLevel    = "info"
	defaultMetricsAddr = "127.0.0.1:9100"
	passphraseEnv      = "BLOCKSTRANDING_PASSPHRASE"
	databaseURLEnv     = "DATABASE_URL"
)

// config is the merged configuration: YAML file first, then command-line
// flags on top.
type config struct {
	DatabaseURL    string              `koanf:"database-url"`
	RollupPath     string              `koanf:"rollup-path"`
	RollupID       string              `koanf:"rollup-id"`
	LogFormat      string              `koanf:"log-format"`
	LogLevel       string              `koanf:"log-level"`
	MetricsAddr    string              `koanf:"metrics-addr"`
	SweepInterval  time.Duration       `koanf:"sweep-interval"`
	RetryAttempts  uint64              `koanf:"retry-attempts"`
	RetryBaseDelay time.Duration       `koanf:"retry-base-delay"`
	KeyFile        string              `koanf:"key-file"`
	Payers         map[string][]string `koanf:"payers"`
}

// registerConfigFlags adds the flags that feed config.
func registerConfigFlags(f *pflag.FlagSet) {
	f.String("config", "", "config file path (default: XDG_CONFIG_HOME/blockstranding/config.yaml)")
	f.String("database-url", "", "PostgreSQL connection URL (default: $DATABASE_URL)")
	f.String("rollup-path", "", "rollup replica database (default: XDG_DATA_HOME/blockstranding/rollup.db)")
	f.String("rollup-id", defaultRollupID, "delegated context id of the local rollup node")
	f.String("log-format", defaultLogFormat, "log format (json or text)")
	f.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	f.String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address for serve (empty = disabled)")
	f.Duration("sweep-interval", delegation.DefaultSweepInterval, "how often serve sweeps delegated players")
	f.Uint64("retry-attempts", delegation.DefaultRetryAttempts, "retries for rollup calls before giving up")
	f.Duration("retry-base-delay", delegation.DefaultRetryBaseDelay, "first retry delay; doubles per attempt")
	f.String("key-file", "", "signing key (default: XDG_CONFIG_HOME/blockstranding/key)")
}

// loadConfig merges the config file and flags into a validated config.
// A missing default config file is not an error; a missing explicit one is.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	k := koanf.New(".")

	path, _ := flags.GetString("config")
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = xdg.ConfigFile(); err != nil {
			return nil, err
		}
	}
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	case explicit || !errors.Is(statErr, fs.ErrNotExist):
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(statErr)
	}
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv(databaseURLEnv)
	}
	if cfg.RollupPath == "" {
		p, err := xdg.RollupPath()
		if err != nil {
			return nil, err
		}
		cfg.RollupPath = p
	}
	if cfg.KeyFile == "" {
		p, err := xdg.KeyFile()
		if err != nil {
			return nil, err
		}
		cfg.KeyFile = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is valid.
func (c *config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").Errorf("log-level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.RollupID == "" {
		return oops.Code("CONFIG_INVALID").Errorf("rollup-id is required")
	}
	if c.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("sweep-interval must be positive, got %s", c.SweepInterval)
	}
	if c.RetryBaseDelay <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("retry-base-delay must be positive, got %s", c.RetryBaseDelay)
	}
	for owner, patterns := range c.Payers {
		if owner == "" || len(patterns) == 0 {
			return oops.Code("CONFIG_INVALID").With("owner", owner).Errorf("payers entries need an owner and at least one pattern")
		}
	}
	return nil
}

// requireDatabase returns an error unless a database URL is configured.
func (c *config) requireDatabase() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url (or %s) is required", databaseURLEnv)
	}
	return nil
}

func (c *config) retry() delegation.RetryConfig {
	return delegation.RetryConfig{Attempts: c.RetryAttempts, BaseDelay: c.RetryBaseDelay}
}
