// Package ledger keeps per-account balances in ledger units (18-decimal
// fixed point) over a key-value backend.
//
// A balance never goes below zero: Debit refuses instead of clamping.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/pkg/hexutil"
)

// Decimals is the fixed-point precision of a ledger unit.
const Decimals = 18

// ErrNegativeAmount is returned for negative or nil amounts.
var ErrNegativeAmount = errors.New("ledger: amount must be non-negative")

// EventKind distinguishes ledger events.
type EventKind int

const (
	// EventCredit is emitted after a credit is committed.
	EventCredit EventKind = iota
	// EventDebit is emitted after a debit is committed.
	EventDebit
)

func (k EventKind) String() string {
	switch k {
	case EventCredit:
		return "credit"
	case EventDebit:
		return "debit"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes a committed balance change.
type Event struct {
	Kind    EventKind
	Account string
	Amount  *big.Int
}

// FormatUnits renders amount as a decimal number of whole ledger units.
func FormatUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -Decimals).String()
}

// Ledger applies credits and debits.
type Ledger struct {
	backend storage.Backend
	logger  zerolog.Logger

	// mu serializes read-modify-write scopes.
	mu sync.Mutex
	// emitMu is taken before mu is released, so events are delivered in
	// commit order.
	emitMu sync.Mutex

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// New creates a ledger over backend.
func New(backend storage.Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: backend,
		logger:  mlog.Ledger,
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Backend returns the underlying backend.
func (l *Ledger) Backend() storage.Backend {
	return l.backend
}

// Subscribe registers fn for every committed event and returns a function
// that removes it. fn runs synchronously on the committing goroutine and
// must not write to the ledger.
func (l *Ledger) Subscribe(fn func(Event)) func() {
	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
		})
	}
}

func (l *Ledger) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	l.subMu.RLock()
	ids := make([]int, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.subs[id])
	}
	l.subMu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Update runs fn in a batch scope. Writes made through tx are committed
// together when fn returns nil and dropped otherwise. Events are delivered
// only after a successful commit.
func (l *Ledger) Update(fn func(tx *Tx) error) error {
	tx, err := l.commit(fn)
	if err != nil {
		return err
	}
	defer l.emitMu.Unlock()

	for _, ev := range tx.events {
		l.logger.Info().
			Str("account", ev.Account).
			Str("amount", FormatUnits(ev.Amount)).
			Msg(ev.Kind.String())
	}
	l.emit(tx.events)
	return nil
}

func (l *Ledger) commit(fn func(tx *Tx) error) (*Tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tx *Tx
	err := storage.Update(l.backend, func(b *storage.Batch) error {
		tx = &Tx{batch: b}
		return fn(tx)
	})
	if err != nil {
		return nil, err
	}
	l.emitMu.Lock()
	return tx, nil
}

// Credit adds amount to account.
func (l *Ledger) Credit(account string, amount *big.Int) error {
	err := l.Update(func(tx *Tx) error {
		return tx.Credit(account, amount)
	})
	if err != nil {
		l.logger.Error().Err(err).Str("account", account).Msg("Credit failed")
	}
	return err
}

// Debit subtracts amount from account. It returns false, leaving the
// balance unchanged, when the balance is smaller than amount.
func (l *Ledger) Debit(account string, amount *big.Int) (bool, error) {
	var ok bool
	err := l.Update(func(tx *Tx) error {
		var err error
		ok, err = tx.Debit(account, amount)
		return err
	})
	if err != nil {
		l.logger.Error().Err(err).Str("account", account).Msg("Debit failed")
		return false, err
	}
	if !ok {
		l.logger.Warn().
			Str("account", account).
			Str("amount", FormatUnits(amount)).
			Msg("Debit refused: insufficient balance")
	}
	return ok, nil
}

// Balance returns the committed balance of account, zero if never credited.
func (l *Ledger) Balance(account string) (*big.Int, error) {
	return readBalance(l.backend, account)
}

func readBalance(s storage.Store, account string) (*big.Int, error) {
	v, ok, err := s.Get(storage.BalanceKey(account))
	if err != nil {
		return nil, fmt.Errorf("read balance for %q: %w", account, err)
	}
	if !ok {
		return new(big.Int), nil
	}
	bal, err := hexutil.ParseBig(v)
	if err != nil {
		return nil, fmt.Errorf("parse balance for %q: %w", account, err)
	}
	return bal, nil
}
