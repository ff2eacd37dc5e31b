// Package config handles monterrey configuration.
//
// Sources, in increasing precedence: built-in defaults, the YAML config
// file, MONTERREY_* environment variables, then command-line flags.
package config

import (
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BackendType selects the key-value store.
type BackendType string

const (
	BackendMemory   BackendType = "memory"
	BackendFile     BackendType = "file"
	BackendBadger   BackendType = "badger"
	BackendPostgres BackendType = "postgres"
)

// Config holds runtime configuration.
type Config struct {
	// Core
	Network string `conf:"network"`
	DataDir string `conf:"datadir"`

	// Derivation. Salt determines every derived address; losing it loses
	// access to all deposit wallets.
	Salt              string `conf:"salt"`
	DerivationVersion int    `conf:"derivation_version"`

	Backend BackendConfig
	RPC     RPCConfig

	// Conversion into ledger units.
	EthConversion *big.Int `conf:"eth_conversion"`
	Tokens        []TokenConfig

	Metrics MetricsConfig
	Log     LogConfig
}

// BackendConfig holds storage settings.
type BackendConfig struct {
	Type        BackendType `conf:"backend.type"`
	Path        string      `conf:"backend.path"` // directory for file and badger
	PostgresDSN string      `conf:"backend.postgres_dsn"`
}

// RPCConfig holds chain node settings.
type RPCConfig struct {
	URL          string        `conf:"rpc.url"`
	PollInterval time.Duration `conf:"rpc.poll_interval"`
	RateLimit    int           `conf:"rpc.rate_limit"` // requests per second, 0 = unlimited
	CallTimeout  time.Duration `conf:"rpc.call_timeout"`
}

// TokenConfig describes one watched token.
type TokenConfig struct {
	Symbol         string
	Address        common.Address
	Decimals       uint8
	ConversionRate *big.Int
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.monterrey
//	macOS:   ~/Library/Application Support/Monterrey
//	Windows: %APPDATA%\Monterrey
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".monterrey"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Monterrey")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Monterrey")
		}
		return filepath.Join(home, "AppData", "Roaming", "Monterrey")
	default:
		return filepath.Join(home, ".monterrey")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, c.Network)
}

// BackendPath returns the storage location for file and badger backends.
func (c *Config) BackendPath() string {
	if c.Backend.Path != "" {
		return c.Backend.Path
	}
	switch c.Backend.Type {
	case BackendBadger:
		return filepath.Join(c.NetworkDataDir(), "ledger")
	default:
		return c.NetworkDataDir()
	}
}

// KeystoreDir returns the exported-keys directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the default config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, ConfigFileName)
}
