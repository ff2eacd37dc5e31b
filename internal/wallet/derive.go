// Package wallet derives deposit wallets for ledger accounts.
//
// Every (account, index) pair maps to one secp256k1 key computed from the
// account key, the index and a process-wide salt. Keys are never stored;
// they are recomputed on demand and cached in memory.
package wallet

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Klingon-tech/monterrey/pkg/crypto"
)

// Derivation versions.
const (
	// V1 derives with a single PBKDF2-HMAC-SHA1 iteration.
	V1 = 1

	// DefaultVersion is the version used when none is configured.
	DefaultVersion = V1
)

const keySize = 32

var (
	// ErrUnsupportedVersion is returned for an unknown derivation version.
	ErrUnsupportedVersion = errors.New("wallet: unsupported derivation version")
	// ErrDerivation is returned when the derived bytes are not a valid key.
	ErrDerivation = errors.New("wallet: derivation failed")
	// ErrEmptySalt is returned when a deriver is built without a salt.
	ErrEmptySalt = errors.New("wallet: empty salt")
)

// Wallet is one derived key and its address.
type Wallet struct {
	Account string
	Index   uint64
	Key     *crypto.PrivateKey
	Address common.Address
}

// Deriver computes wallet keys from a salt.
type Deriver struct {
	salt    []byte
	version int
}

// NewDeriver creates a deriver for salt using the given derivation version.
func NewDeriver(salt string, version int) (*Deriver, error) {
	if salt == "" {
		return nil, ErrEmptySalt
	}
	if version == 0 {
		version = DefaultVersion
	}
	if version != V1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return &Deriver{salt: []byte(salt), version: version}, nil
}

// Version returns the derivation version.
func (d *Deriver) Version() int {
	return d.version
}

// Seed returns Keccak256(salt || uint256(index)), the per-index seed.
func (d *Deriver) Seed(index uint64) []byte {
	word := new(big.Int).SetUint64(index).FillBytes(make([]byte, 32))
	return crypto.Keccak256(d.salt, word)
}

// Derive returns the wallet for account at index.
func (d *Deriver) Derive(account string, index uint64) (*Wallet, error) {
	seed := d.Seed(index)
	raw := pbkdf2.Key([]byte(account), seed, 1, keySize, sha1.New)
	defer clear(raw)

	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: account %q index %d: %v", ErrDerivation, account, index, err)
	}
	return &Wallet{
		Account: account,
		Index:   index,
		Key:     key,
		Address: key.Address(),
	}, nil
}
