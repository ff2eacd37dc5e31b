// Package watcher reconciles on-chain deposits into the ledger, one block
// interval per tick.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/monterrey/internal/balance"
	"github.com/Klingon-tech/monterrey/internal/ledger"
	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/internal/wallet"
	"github.com/Klingon-tech/monterrey/pkg/hexutil"
)

var (
	// ErrRunning is returned by Start when the watcher is already running.
	ErrRunning = errors.New("watcher: already running")
	// ErrUnknownOwner is returned when a watched address has no owner.
	ErrUnknownOwner = errors.New("watcher: address has no owning account")
)

// Client is the chain access the watcher needs.
type Client interface {
	balance.Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// HeadSubscriber delivers new chain heads.
type HeadSubscriber interface {
	SubscribeHeads(ctx context.Context) (<-chan uint64, func(), error)
}

// Recorder receives reconciliation measurements.
type Recorder interface {
	ObserveTick(d time.Duration, worked bool)
	TickFailed()
	Credited(denom string, amount *big.Int)
	SetHead(block uint64)
	SetCursor(block uint64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTick(time.Duration, bool) {}
func (nopRecorder) TickFailed()                     {}
func (nopRecorder) Credited(string, *big.Int)       {}
func (nopRecorder) SetHead(uint64)                  {}
func (nopRecorder) SetCursor(uint64)                {}

// NativeSymbol labels native-currency credits.
const NativeSymbol = "native"

// Watcher drives reconciliation ticks.
type Watcher struct {
	client  Client
	fetcher *balance.Fetcher
	wallets *wallet.Manager
	ledger  *ledger.Ledger
	cfg     Config
	logger  zerolog.Logger
	rec     Recorder

	// tickMu admits one tick at a time.
	tickMu sync.Mutex

	runMu   sync.Mutex
	cancel  context.CancelFunc
	unsub   func()
	wg      sync.WaitGroup
	running bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Watcher) {
		if r != nil {
			w.rec = r
		}
	}
}

// New creates a watcher.
func New(client Client, wallets *wallet.Manager, l *ledger.Ledger, cfg Config, opts ...Option) (*Watcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := &Watcher{
		client:  client,
		fetcher: balance.NewFetcher(client),
		wallets: wallets,
		ledger:  l,
		cfg:     cfg,
		logger:  mlog.Watcher,
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Config returns the conversion settings.
func (w *Watcher) Config() Config {
	return w.cfg
}

// Cursor returns the persisted cursor, if any.
func (w *Watcher) Cursor() (uint64, bool, error) {
	v, ok, err := w.ledger.Backend().Get(storage.BlockKey)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := hexutil.ParseUint(v)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor: %w", err)
	}
	return n, true, nil
}

type credit struct {
	account string
	denom   string
	amount  *big.Int
}

// Tick reconciles the block interval (cursor, cursor+1]. It reports whether
// it advanced the cursor; callers loop until it returns false. Ticks never
// overlap.
func (w *Watcher) Tick(ctx context.Context) (bool, error) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	start := time.Now()
	worked, err := w.tick(ctx)
	if err != nil {
		w.rec.TickFailed()
		return false, err
	}
	w.rec.ObserveTick(time.Since(start), worked)
	return worked, nil
}

func (w *Watcher) tick(ctx context.Context) (bool, error) {
	defer mlog.Benchmark("tick")()

	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("block number: %w", err)
	}
	w.rec.SetHead(head)

	cursor, ok, err := w.Cursor()
	if err != nil {
		return false, err
	}
	if !ok {
		cursor = head
		if err := w.ledger.Update(func(tx *ledger.Tx) error {
			return tx.Set(storage.BlockKey, hexutil.FormatUint(cursor))
		}); err != nil {
			return false, fmt.Errorf("initialize cursor: %w", err)
		}
		w.logger.Info().Uint64("block", cursor).Msg("Cursor initialized at chain head")
	}
	w.rec.SetCursor(cursor)
	if cursor >= head {
		return false, nil
	}

	next := cursor + 1
	credits, err := w.collect(ctx, cursor, next)
	if err != nil {
		return false, err
	}

	err = w.ledger.Update(func(tx *ledger.Tx) error {
		for _, c := range credits {
			if err := tx.Credit(c.account, c.amount); err != nil {
				return err
			}
		}
		return tx.Set(storage.BlockKey, hexutil.FormatUint(next))
	})
	if err != nil {
		return false, fmt.Errorf("commit block %d: %w", next, err)
	}

	for _, c := range credits {
		w.rec.Credited(c.denom, c.amount)
	}
	w.rec.SetCursor(next)
	w.logger.Debug().
		Uint64("block", next).
		Uint64("head", head).
		Int("credits", len(credits)).
		Msg("Reconciled block")
	return true, nil
}

// collect diffs the snapshots at from and to and returns the credits owed.
func (w *Watcher) collect(ctx context.Context, from, to uint64) ([]credit, error) {
	wallets, err := w.wallets.Addresses()
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, nil
	}

	addrs := make([]common.Address, len(wallets))
	for i, wl := range wallets {
		addrs[i] = wl.Address
	}
	tokens := make([]common.Address, len(w.cfg.Tokens))
	for i, t := range w.cfg.Tokens {
		tokens[i] = t.Address
	}

	before, err := w.fetcher.FetchBalances(ctx, addrs, tokens, new(big.Int).SetUint64(from))
	if err != nil {
		return nil, fmt.Errorf("snapshot at %d: %w", from, err)
	}
	after, err := w.fetcher.FetchBalances(ctx, addrs, tokens, new(big.Int).SetUint64(to))
	if err != nil {
		return nil, fmt.Errorf("snapshot at %d: %w", to, err)
	}

	var credits []credit
	for i, addr := range addrs {
		owner, ok := w.wallets.Owner(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOwner, addr.Hex())
		}

		if d := new(big.Int).Sub(after[i].Native, before[i].Native); d.Sign() > 0 {
			credits = append(credits, credit{owner, NativeSymbol, w.cfg.ConvertNative(d)})
			w.logger.Info().
				Str("account", owner).
				Str("address", addr.Hex()).
				Str("delta", d.String()).
				Msg("Native deposit")
		}
		for j, t := range w.cfg.Tokens {
			d := new(big.Int).Sub(after[i].Tokens[j], before[i].Tokens[j])
			if d.Sign() <= 0 {
				continue
			}
			credits = append(credits, credit{owner, t.Symbol, w.cfg.Convert(d, t)})
			w.logger.Info().
				Str("account", owner).
				Str("address", addr.Hex()).
				Str("token", t.Symbol).
				Str("delta", d.String()).
				Msg("Token deposit")
		}
	}
	return credits, nil
}

// CatchUp ticks until the cursor reaches the head or ctx ends, returning
// the number of blocks reconciled.
func (w *Watcher) CatchUp(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		worked, err := w.Tick(ctx)
		if err != nil {
			return n, err
		}
		if !worked {
			return n, nil
		}
		n++
	}
}

// Start subscribes to new heads, backfills, and then reconciles on every
// head until Stop or ctx cancellation. Errors in the background loop are
// logged and retried on the next head.
func (w *Watcher) Start(ctx context.Context, heads HeadSubscriber) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch, unsub, err := heads.SubscribeHeads(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe heads: %w", err)
	}
	w.cancel = cancel
	w.unsub = unsub
	w.running = true

	w.wg.Add(1)
	go w.run(runCtx, ch)
	return nil
}

func (w *Watcher) run(ctx context.Context, heads <-chan uint64) {
	defer w.wg.Done()

	w.sync(ctx, "backfill")
	for {
		select {
		case <-ctx.Done():
			return
		case head, ok := <-heads:
			if !ok {
				w.logger.Warn().Msg("Head subscription closed")
				return
			}
			w.logger.Debug().Uint64("head", head).Msg("New head")
			w.sync(ctx, "live")
		}
	}
}

// sync ticks until caught up. Each tick runs to completion even if ctx is
// cancelled mid-way; cancellation is only observed between ticks.
func (w *Watcher) sync(ctx context.Context, mode string) {
	tickCtx := context.WithoutCancel(ctx)
	n := 0
	for ctx.Err() == nil {
		worked, err := w.Tick(tickCtx)
		if err != nil {
			w.logger.Error().Err(err).Str("mode", mode).Msg("Tick failed")
			return
		}
		if !worked {
			break
		}
		n++
	}
	if n > 0 {
		w.logger.Info().Str("mode", mode).Int("blocks", n).Msg("Caught up")
	}
}

// Stop prevents new ticks, waits for an in-flight tick, and detaches from
// the head subscription.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.unsub()
	w.wg.Wait()
	w.running = false
}
