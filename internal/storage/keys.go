package storage

import "strings"

// Key layout (single flat namespace):
//
//	<account>@@count   → decimal number of derived wallets
//	<account>@@balance → 0x-hex ledger balance
//	@@block            → decimal last reconciled block height
const (
	countSuffix   = "@@count"
	balanceSuffix = "@@balance"

	// BlockKey holds the reconciliation cursor.
	BlockKey = "@@block"
)

// CountKey returns the derivation counter key for an account.
func CountKey(account string) string {
	return account + countSuffix
}

// BalanceKey returns the ledger balance key for an account.
func BalanceKey(account string) string {
	return account + balanceSuffix
}

// AccountFromCountKey extracts the account from a counter key.
func AccountFromCountKey(key string) (string, bool) {
	if !strings.HasSuffix(key, countSuffix) {
		return "", false
	}
	return strings.TrimSuffix(key, countSuffix), true
}
