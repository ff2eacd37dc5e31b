package ledger

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/monterrey/internal/storage"
	"github.com/Klingon-tech/monterrey/pkg/hexutil"
)

// Tx is a batch scope over the ledger's backend. Reads see the scope's
// own uncommitted writes.
type Tx struct {
	batch  *storage.Batch
	events []Event
}

// Balance returns account's balance as seen inside the scope.
func (tx *Tx) Balance(account string) (*big.Int, error) {
	return readBalance(tx.batch, account)
}

// Credit adds amount to account.
func (tx *Tx) Credit(account string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: credit %q", ErrNegativeAmount, account)
	}
	bal, err := tx.Balance(account)
	if err != nil {
		return err
	}
	bal.Add(bal, amount)
	if err := tx.batch.Set(storage.BalanceKey(account), hexutil.FormatBig(bal)); err != nil {
		return fmt.Errorf("write balance for %q: %w", account, err)
	}
	tx.events = append(tx.events, Event{Kind: EventCredit, Account: account, Amount: new(big.Int).Set(amount)})
	return nil
}

// Debit subtracts amount from account if the balance covers it.
func (tx *Tx) Debit(account string, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() < 0 {
		return false, fmt.Errorf("%w: debit %q", ErrNegativeAmount, account)
	}
	bal, err := tx.Balance(account)
	if err != nil {
		return false, err
	}
	if bal.Cmp(amount) < 0 {
		return false, nil
	}
	bal.Sub(bal, amount)
	if err := tx.batch.Set(storage.BalanceKey(account), hexutil.FormatBig(bal)); err != nil {
		return false, fmt.Errorf("write balance for %q: %w", account, err)
	}
	tx.events = append(tx.events, Event{Kind: EventDebit, Account: account, Amount: new(big.Int).Set(amount)})
	return true, nil
}

// Get reads a raw key inside the scope.
func (tx *Tx) Get(key string) (string, bool, error) {
	return tx.batch.Get(key)
}

// Set writes a raw key inside the scope, committed with the balances.
func (tx *Tx) Set(key, value string) error {
	return tx.batch.Set(key, value)
}
