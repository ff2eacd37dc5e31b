package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type slot struct {
	account string
	index   uint64
}

// Cache holds derived wallets and the reverse address lookup.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	wallets map[slot]*Wallet
	owners  map[common.Address]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		wallets: make(map[slot]*Wallet),
		owners:  make(map[common.Address]string),
	}
}

// Get returns the cached wallet for (account, index).
func (c *Cache) Get(account string, index uint64) (*Wallet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.wallets[slot{account, index}]
	return w, ok
}

// Put stores w and records its owner.
func (c *Cache) Put(w *Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallets[slot{w.Account, w.Index}] = w
	c.owners[w.Address] = w.Account
}

// Owner returns the account that owns addr.
func (c *Cache) Owner(addr common.Address) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acct, ok := c.owners[addr]
	return acct, ok
}

// Len returns the number of cached wallets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.wallets)
}
