// Package crypto provides the key and hashing primitives used to derive
// deposit wallets.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 computes the legacy Keccak-256 hash of the concatenated inputs.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// AddressFromPubKey derives an EVM address from a 65-byte uncompressed
// public key. Address = Keccak256(X || Y)[12:].
func AddressFromPubKey(uncompressed []byte) common.Address {
	h := Keccak256(uncompressed[1:])
	return common.BytesToAddress(h[12:])
}
