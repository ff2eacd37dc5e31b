// Package node wires storage, wallets, the ledger and the deposit watcher
// into one runnable unit that can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/monterrey/config"
	"github.com/Klingon-tech/monterrey/internal/ethrpc"
	"github.com/Klingon-tech/monterrey/internal/ledger"
	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/metrics"
	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/internal/wallet"
	"github.com/Klingon-tech/monterrey/internal/watcher"
	"github.com/Klingon-tech/monterrey/pkg/hexutil"
)

const (
	openTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ErrNotConnected is returned when an operation needs the chain node
// before Connect or Start.
var ErrNotConnected = errors.New("node: not connected to chain")

// Node is a fully-initialized deposit ledger.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	backend  storage.Backend
	wallets  *wallet.Manager
	ledger   *ledger.Ledger
	keystore *wallet.Keystore

	// Metrics
	metrics     *metrics.Metrics
	metricsSrv  *metrics.Server
	unsubLedger func()

	// Chain
	connMu  sync.Mutex
	client  *ethrpc.Client
	watcher *watcher.Watcher
}

// New creates and initializes a Node. It opens storage and builds the
// wallet manager and ledger but does not contact the chain node; call
// Connect or Start for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Directories ──────────────────────────────────────────────
	if err := config.EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("creating data dirs: %w", err)
	}

	// ── 2. Init logger ──────────────────────────────────────────────
	file := logFile(cfg)
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
	}
	if err := mlog.Init(cfg.Log.Level, cfg.Log.JSON, file); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := mlog.Node

	logger.Info().
		Str("network", cfg.Network).
		Str("backend", string(cfg.Backend.Type)).
		Int("tokens", len(cfg.Tokens)).
		Msg("Starting Monterrey")

	// ── 3. Derivation ───────────────────────────────────────────────
	deriver, err := wallet.NewDeriver(cfg.Salt, cfg.DerivationVersion)
	if err != nil {
		return nil, fmt.Errorf("derivation: %w", err)
	}
	if !wallet.IsSaltPhrase(cfg.Salt) {
		logger.Warn().Msg("Salt is not a generated phrase; make sure it has enough entropy")
	}

	// ── 4. Open storage ─────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	backend, err := OpenBackend(ctx, cfg)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	keystore, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		backend.Close()
		return nil, err
	}

	// ── 5. Wallets and ledger ───────────────────────────────────────
	wallets := wallet.NewManager(backend, deriver)
	addrs, err := wallets.Addresses()
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	logger.Info().Int("wallets", len(addrs)).Msg("Wallets loaded")

	l := ledger.New(backend)
	m := metrics.New()

	return &Node{
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		wallets:     wallets,
		ledger:      l,
		keystore:    keystore,
		metrics:     m,
		unsubLedger: l.Subscribe(m.ObserveLedger),
	}, nil
}

// Connect dials the chain node and builds the deposit watcher. It is a
// no-op when already connected.
func (n *Node) Connect(ctx context.Context) error {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.client != nil {
		return nil
	}

	client, err := ethrpc.Dial(ctx, n.cfg.RPC.URL, ethrpc.Options{
		PollInterval: n.cfg.RPC.PollInterval,
		RateLimit:    n.cfg.RPC.RateLimit,
		CallTimeout:  n.cfg.RPC.CallTimeout,
	})
	if err != nil {
		return err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("query chain id: %w", err)
	}

	w, err := watcher.New(client, n.wallets, n.ledger, watcherConfig(n.cfg),
		watcher.WithRecorder(n.metrics))
	if err != nil {
		client.Close()
		return err
	}

	n.client = client
	n.watcher = w
	n.logger.Info().
		Str("url", n.cfg.RPC.URL).
		Str("chain_id", chainID.String()).
		Msg("Connected to chain node")
	return nil
}

// Start connects, serves metrics when enabled, and starts reconciling
// deposits in the background.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Connect(ctx); err != nil {
		return err
	}

	var started *metrics.Server
	if n.cfg.Metrics.Enabled && n.metricsSrv == nil {
		srv, err := metrics.Listen(n.cfg.Metrics.Addr, n.metrics)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", n.cfg.Metrics.Addr, err)
		}
		n.metricsSrv = srv
		started = srv
		n.logger.Info().Str("addr", srv.Addr()).Msg("Metrics server started")
	}

	if err := n.watcher.Start(ctx, n.client); err != nil {
		if started != nil {
			n.closeMetrics()
		}
		return err
	}

	cursor, ok, err := n.Cursor()
	if err != nil {
		return err
	}
	ev := n.logger.Info()
	if ok {
		ev = ev.Uint64("cursor", cursor)
	}
	ev.Msg("Node started successfully")
	return nil
}

func (n *Node) closeMetrics() {
	if n.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.metricsSrv.Close(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("Metrics server shutdown")
	}
	n.metricsSrv = nil
}

// Stop gracefully shuts down the node. An in-flight tick is allowed to
// finish before storage is closed.
func (n *Node) Stop() {
	n.connMu.Lock()
	w, client := n.watcher, n.client
	n.connMu.Unlock()

	if w != nil {
		w.Stop()
	}
	n.closeMetrics()
	if n.unsubLedger != nil {
		n.unsubLedger()
	}
	if client != nil {
		client.Close()
	}
	if n.backend != nil {
		if err := n.backend.Flush(); err != nil {
			n.logger.Error().Err(err).Msg("Flush storage")
		}
		n.backend.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// Tick runs one reconciliation step against the chain node.
func (n *Node) Tick(ctx context.Context) (bool, error) {
	w, err := n.connected()
	if err != nil {
		return false, err
	}
	return w.Tick(ctx)
}

// CatchUp reconciles until the cursor reaches the chain head.
func (n *Node) CatchUp(ctx context.Context) (int, error) {
	w, err := n.connected()
	if err != nil {
		return 0, err
	}
	return w.CatchUp(ctx)
}

func (n *Node) connected() (*watcher.Watcher, error) {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.watcher == nil {
		return nil, ErrNotConnected
	}
	return n.watcher, nil
}

// Config returns the node configuration.
func (n *Node) Config() *config.Config {
	return n.cfg
}

// Wallets returns the wallet manager.
func (n *Node) Wallets() *wallet.Manager {
	return n.wallets
}

// Ledger returns the balance ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Keystore returns the exported-key store.
func (n *Node) Keystore() *wallet.Keystore {
	return n.keystore
}

// Metrics returns the node's collectors.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// MetricsAddr returns the address the metrics server is listening on.
func (n *Node) MetricsAddr() string {
	if n.metricsSrv == nil {
		return ""
	}
	return n.metricsSrv.Addr()
}

// Cursor returns the last reconciled block. It does not need a chain
// connection.
func (n *Node) Cursor() (uint64, bool, error) {
	v, ok, err := n.backend.Get(storage.BlockKey)
	if err != nil || !ok {
		return 0, false, err
	}
	block, err := hexutil.ParseUint(v)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor: %w", err)
	}
	return block, true, nil
}
