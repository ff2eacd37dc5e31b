package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/monterrey/config"
	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/internal/watcher"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// OpenBackend opens and initializes the storage backend selected by cfg.
func OpenBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Backend.Type {
	case config.BackendMemory:
		backend = storage.NewMemory()
	case config.BackendFile:
		backend = storage.NewFile(expandHome(cfg.BackendPath()))
	case config.BackendBadger:
		backend, err = storage.NewBadger(expandHome(cfg.BackendPath()))
	case config.BackendPostgres:
		backend, err = storage.NewPostgres(ctx, cfg.Backend.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(); err != nil {
		backend.Close()
		return nil, fmt.Errorf("initialize %s backend: %w", cfg.Backend.Type, err)
	}

	ev := mlog.Storage.Info().Str("type", string(cfg.Backend.Type))
	if cfg.Backend.Type == config.BackendFile || cfg.Backend.Type == config.BackendBadger {
		ev = ev.Str("path", expandHome(cfg.BackendPath()))
	}
	ev.Msg("Storage opened")
	return backend, nil
}

// watcherConfig converts the conversion settings of cfg.
func watcherConfig(cfg *config.Config) watcher.Config {
	wc := watcher.Config{EthConversion: cfg.EthConversion}
	for _, t := range cfg.Tokens {
		wc.Tokens = append(wc.Tokens, watcher.Token{
			Symbol:         t.Symbol,
			Address:        t.Address,
			Decimals:       t.Decimals,
			ConversionRate: t.ConversionRate,
		})
	}
	return wc
}

// logFile resolves the log file path. Relative names live in the logs
// directory; an empty name disables file logging.
func logFile(cfg *config.Config) string {
	if cfg.Log.File == "" {
		return ""
	}
	path := expandHome(cfg.Log.File)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.LogsDir(), path)
}
