package evmasm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// WordSize is the width of one result slot.
const WordSize = 32

// balanceOfCallSize is selector(4) + address word(32).
const balanceOfCallSize = 4 + WordSize

// BalanceOfSelector is the 4-byte selector of balanceOf(address).
var BalanceOfSelector = [4]byte{0x70, 0xa0, 0x82, 0x31}

var (
	// ErrEmptyResult is returned when the node returned no data at all.
	ErrEmptyResult = errors.New("evmasm: empty call result")
	// ErrMalformedResult is returned when the result is not whole 32-byte words.
	ErrMalformedResult = errors.New("evmasm: malformed call result")
)

// ResultSize returns the byte length of the output buffer for n addresses
// and m tokens.
func ResultSize(addresses, tokens int) int {
	return addresses * (1 + tokens) * WordSize
}

// SlotOffset returns the output offset of denomination j for address i,
// with j = 0 the native balance and j = 1..m the configured tokens.
// Slots are address-major, token-minor.
func SlotOffset(i, j, tokens int) int {
	return (i*(1+tokens) + j) * WordSize
}

// NativeBalances assembles a program returning the native balance of each
// address as consecutive 32-byte words.
func NativeBalances(addrs []common.Address) []byte {
	return Balances(addrs, nil)
}

// Balances assembles a program returning, for each address, its native
// balance followed by its balanceOf on every token, in order.
//
// Each token read is a STATICCALL into the token contract with calldata
// staged in a scratch area just past the output buffer. The returned word
// is multiplied by the call's success flag before it is stored, so a token
// that reverts (or has no code and returns nothing) yields zero without
// aborting the program.
func Balances(addrs []common.Address, tokens []common.Address) []byte {
	m := len(tokens)
	size := ResultSize(len(addrs), m)
	scratch := uint64(size)

	selectorWord := make([]byte, WordSize)
	copy(selectorWord, BalanceOfSelector[:])

	p := NewProgram()
	for i, addr := range addrs {
		native := uint64(SlotOffset(i, 0, m))
		p.PushAddress(addr).
			Op(vm.BALANCE).
			PushUint(native).
			Op(vm.MSTORE)

		if m == 0 {
			continue
		}

		// Stage balanceOf(addr) calldata: selector word, then the address
		// word at +4, which overwrites only the zero tail of the selector word.
		p.PushBytes(selectorWord).
			PushUint(scratch).
			Op(vm.MSTORE).
			PushAddress(addr).
			PushUint(scratch + 4).
			Op(vm.MSTORE)

		for j, token := range tokens {
			slot := uint64(SlotOffset(i, j+1, m))
			// STATICCALL(gas, token, argsOffset, argsSize, retOffset, retSize)
			p.PushUint(WordSize).
				PushUint(slot).
				PushUint(balanceOfCallSize).
				PushUint(scratch).
				PushAddress(token).
				Op(vm.GAS).
				Op(vm.STATICCALL)

			// slot = success * mload(slot)
			p.PushUint(slot).
				Op(vm.MLOAD).
				Op(vm.MUL).
				PushUint(slot).
				Op(vm.MSTORE)
		}
	}
	p.PushUint(uint64(size)).
		PushUint(0).
		Op(vm.RETURN)

	return p.Bytes()
}

// DecodeWords splits a call result into 32-byte unsigned integers.
func DecodeWords(ret []byte) ([]*big.Int, error) {
	if len(ret) == 0 {
		return nil, ErrEmptyResult
	}
	if len(ret)%WordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedResult, len(ret), WordSize)
	}
	words := make([]*big.Int, len(ret)/WordSize)
	for i := range words {
		words[i] = new(big.Int).SetBytes(ret[i*WordSize : (i+1)*WordSize])
	}
	return words, nil
}
