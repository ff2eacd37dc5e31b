package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
)

// PrivateKeySize is the length of a serialized private key scalar.
const PrivateKeySize = 32

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
// The scalar must be non-zero and below the curve order.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("private key exceeds curve order")
	}
	if s.IsZero() {
		return nil, fmt.Errorf("private key is zero")
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&s)}, nil
}

// PublicKey returns the 65-byte uncompressed public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeUncompressed()
}

// Address returns the EVM address controlled by this key.
func (pk *PrivateKey) Address() common.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Hex returns the 0x-prefixed private key.
func (pk *PrivateKey) Hex() string {
	return "0x" + hex.EncodeToString(pk.Serialize())
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}
