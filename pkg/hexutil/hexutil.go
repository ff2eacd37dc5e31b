// Package hexutil provides hex string normalization, padding, and the
// integer value codec used for persisted ledger values.
package hexutil

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

// AddPrefix returns s with a leading "0x". Strings that already carry the
// prefix are returned unchanged.
func AddPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// StripPrefix returns s without its leading "0x", if any.
func StripPrefix(s string) string {
	return AddPrefix(s)[2:]
}

// LeftPadBytes32 left-pads s with zeros to 32 bytes (64 hex characters).
// Inputs longer than 32 bytes are returned unpadded.
func LeftPadBytes32(s string) string {
	h := StripPrefix(s)
	if len(h) >= 64 {
		return AddPrefix(h)
	}
	return AddPrefix(strings.Repeat("0", 64-len(h)) + h)
}

// RightPadBytes32 right-pads s with zeros to 32 bytes (64 hex characters).
func RightPadBytes32(s string) string {
	h := StripPrefix(s)
	if len(h) >= 64 {
		return AddPrefix(h)
	}
	return AddPrefix(h + strings.Repeat("0", 64-len(h)))
}

// LeftPadByte pads s to a whole number of bytes.
func LeftPadByte(s string) string {
	h := StripPrefix(s)
	if len(h)%2 != 0 {
		return AddPrefix("0" + h)
	}
	return AddPrefix(h)
}

// FormatBig encodes v as minimal 0x-prefixed hex. Nil and zero encode as "0x0".
func FormatBig(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

// ParseBig decodes a 0x-prefixed hex or plain decimal integer. Values must
// be non-negative and fit in 256 bits.
func ParseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid 256-bit integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", s)
	}
	return v, nil
}

// FormatUint encodes n as a decimal string.
func FormatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// ParseUint decodes a decimal or 0x-prefixed hex uint64.
func ParseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	n, ok := math.ParseUint64(s)
	if !ok {
		return 0, fmt.Errorf("invalid uint64 %q", s)
	}
	return n, nil
}
