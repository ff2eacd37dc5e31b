package wallet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	mlog "github.com/Klingon-tech/monterrey/internal/log"
	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/pkg/hexutil"
)

// Manager allocates and materializes wallets for accounts, persisting the
// per-account derivation counter in a store.
type Manager struct {
	store   storage.Store
	deriver *Deriver
	cache   *Cache
	logger  zerolog.Logger

	// mu serializes counter read-modify-write in Generate.
	mu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithCache shares an existing cache.
func WithCache(c *Cache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// NewManager creates a manager over store.
func NewManager(store storage.Store, deriver *Deriver, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		deriver: deriver,
		cache:   NewCache(),
		logger:  mlog.Wallet,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the manager's wallet cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Count returns how many wallets have been allocated for account.
func (m *Manager) Count(account string) (uint64, error) {
	v, ok, err := m.store.Get(storage.CountKey(account))
	if err != nil {
		return 0, fmt.Errorf("read count for %q: %w", account, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := hexutil.ParseUint(v)
	if err != nil {
		return 0, fmt.Errorf("parse count for %q: %w", account, err)
	}
	return n, nil
}

// Generate allocates the next wallet for account and advances its counter.
func (m *Manager) Generate(account string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.Count(account)
	if err != nil {
		return nil, err
	}
	w, err := m.GenerateAt(account, n)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(storage.CountKey(account), hexutil.FormatUint(n+1)); err != nil {
		return nil, fmt.Errorf("write count for %q: %w", account, err)
	}
	m.logger.Info().
		Str("account", account).
		Uint64("index", n).
		Str("address", w.Address.Hex()).
		Msg("Allocated wallet")
	return w, nil
}

// GenerateAt returns the wallet for account at index without touching the
// counter. Results are cached.
func (m *Manager) GenerateAt(account string, index uint64) (*Wallet, error) {
	if w, ok := m.cache.Get(account, index); ok {
		return w, nil
	}
	w, err := m.deriver.Derive(account, index)
	if err != nil {
		m.logger.Error().Err(err).Str("account", account).Uint64("index", index).Msg("Derivation failed")
		return nil, err
	}
	m.cache.Put(w)
	m.logger.Debug().
		Str("account", account).
		Uint64("index", index).
		Str("address", w.Address.Hex()).
		Msg("Derived wallet")
	return w, nil
}

// Accounts returns every account with a derivation counter, sorted.
func (m *Manager) Accounts() ([]string, error) {
	keys, err := m.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	var out []string
	for _, k := range keys {
		if acct, ok := storage.AccountFromCountKey(k); ok {
			out = append(out, acct)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Wallets returns every allocated wallet of account in index order.
func (m *Manager) Wallets(account string) ([]*Wallet, error) {
	n, err := m.Count(account)
	if err != nil {
		return nil, err
	}
	out := make([]*Wallet, 0, n)
	for i := uint64(0); i < n; i++ {
		w, err := m.GenerateAt(account, i)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Addresses materializes every allocated wallet of every account, ordered
// by account then index. The reverse lookup is populated as a side effect.
func (m *Manager) Addresses() ([]*Wallet, error) {
	accounts, err := m.Accounts()
	if err != nil {
		return nil, err
	}
	var out []*Wallet
	for _, acct := range accounts {
		ws, err := m.Wallets(acct)
		if err != nil {
			return nil, err
		}
		out = append(out, ws...)
	}
	return out, nil
}

// Owner returns the account owning addr among wallets derived so far.
func (m *Manager) Owner(addr common.Address) (string, bool) {
	return m.cache.Owner(addr)
}
