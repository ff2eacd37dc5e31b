package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/wallet"
)

// ErrNoSalt is returned when no derivation salt is configured.
var ErrNoSalt = errors.New("salt is required (set salt in the config file or MONTERREY_SALT)")

// Validate checks configuration for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Network) == "" {
		return fmt.Errorf("network must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	if cfg.Salt == "" {
		return ErrNoSalt
	}
	if err := wallet.ValidateSalt(cfg.Salt); err != nil {
		return err
	}
	if cfg.DerivationVersion != wallet.V1 {
		return fmt.Errorf("derivation_version %d is not supported", cfg.DerivationVersion)
	}

	switch cfg.Backend.Type {
	case BackendMemory, BackendFile, BackendBadger:
	case BackendPostgres:
		if cfg.Backend.PostgresDSN == "" {
			return fmt.Errorf("backend.type=postgres requires backend.postgres_dsn")
		}
	default:
		return fmt.Errorf("backend.type must be memory, file, badger or postgres, got %q", cfg.Backend.Type)
	}

	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc.url must not be empty")
	}
	if cfg.RPC.PollInterval <= 0 {
		return fmt.Errorf("rpc.poll_interval must be positive")
	}
	if cfg.RPC.RateLimit < 0 {
		return fmt.Errorf("rpc.rate_limit must not be negative")
	}

	if cfg.EthConversion == nil || cfg.EthConversion.Sign() <= 0 {
		return fmt.Errorf("eth_conversion must be positive")
	}
	if err := validateTokens(cfg.Tokens); err != nil {
		return err
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.enabled requires metrics.addr")
	}
	if _, err := mlog.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func validateTokens(tokens []TokenConfig) error {
	seen := make(map[common.Address]struct{}, len(tokens))
	for i, t := range tokens {
		if t.Symbol == "" {
			return fmt.Errorf("tokens[%d] has no symbol", i)
		}
		if t.Address == (common.Address{}) {
			return fmt.Errorf("tokens[%d] (%s) has zero address", i, t.Symbol)
		}
		if t.Decimals > MaxTokenDecimals {
			return fmt.Errorf("tokens[%d] (%s) decimals %d exceed %d", i, t.Symbol, t.Decimals, MaxTokenDecimals)
		}
		if t.ConversionRate == nil || t.ConversionRate.Sign() <= 0 {
			return fmt.Errorf("tokens[%d] (%s) conversion rate must be positive", i, t.Symbol)
		}
		if _, ok := seen[t.Address]; ok {
			return fmt.Errorf("tokens has duplicate address %s", t.Address.Hex())
		}
		seen[t.Address] = struct{}{}
	}
	return nil
}
