package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"config":             KeyConfigFile,
	"network":            KeyNetwork,
	"datadir":            KeyDataDir,
	"salt":               KeySalt,
	"derivation-version": KeyDerivationVersion,
	"backend":            KeyBackendType,
	"backend-path":       KeyBackendPath,
	"postgres-dsn":       KeyPostgresDSN,
	"rpc":                KeyRPCURL,
	"poll-interval":      KeyRPCPollInterval,
	"rate-limit":         KeyRPCRateLimit,
	"call-timeout":       KeyRPCCallTimeout,
	"eth-conversion":     KeyEthConversion,
	"token":              KeyTokens,
	"metrics":            KeyMetricsEnabled,
	"metrics-addr":       KeyMetricsAddr,
	"log-level":          KeyLogLevel,
	"log-file":           KeyLogFile,
	"log-json":           KeyLogJSON,
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	// Core
	fs.StringP("config", "c", "", "Config file path (default <datadir>/"+ConfigFileName+")")
	fs.String("network", "", "Network label, selects <datadir>/<network>")
	fs.String("datadir", "", "Data directory path")

	// Derivation
	fs.String("salt", "", "Derivation salt (prefer MONTERREY_SALT or the config file)")
	fs.Int("derivation-version", 0, "Key derivation version")

	// Storage
	fs.String("backend", "", "Storage backend: memory, file, badger or postgres")
	fs.String("backend-path", "", "Storage directory for file and badger backends")
	fs.String("postgres-dsn", "", "Postgres connection string")

	// Chain node
	fs.String("rpc", "", "Node RPC endpoint (http, ws or ipc)")
	fs.Duration("poll-interval", 0, "Head polling interval when subscriptions are unavailable")
	fs.Int("rate-limit", 0, "Maximum node requests per second (0 = unlimited)")
	fs.Duration("call-timeout", 0, "Per-request timeout")

	// Conversion
	fs.String("eth-conversion", "", "Ledger units per wei of native deposits")
	fs.StringSlice("token", nil, "Watched token as SYMBOL:ADDRESS:DECIMALS:RATE (repeatable)")

	// Metrics
	fs.Bool("metrics", false, "Serve Prometheus metrics")
	fs.String("metrics-addr", "", "Metrics listen address")

	// Logging
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-file", "", "Log file path")
	fs.Bool("log-json", false, "Output logs as JSON")
}

// BindFlags binds the flags registered by RegisterFlags into v. Only flags
// set on the command line override other sources.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// EnsureDataDirs creates the directories the configuration points at.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{cfg.DataDir, cfg.NetworkDataDir(), cfg.KeystoreDir()}
	if cfg.Log.File != "" {
		dirs = append(dirs, cfg.LogsDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
