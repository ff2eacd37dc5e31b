// Package evmtest runs evmasm programs on go-ethereum's EVM against a
// scripted balance table. It stands in for a node in tests.
package evmtest

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Klingon-tech/monterrey/internal/evmasm"
)

// revertData is what a reverting token returns.
var revertData = bytes.Repeat([]byte{0xde, 0xad}, 16)

// tokenCode answers balanceOf(holder) from storage slot keccak256(holder)
// and reverts on any other selector.
var tokenCode = func() []byte {
	p := evmasm.NewProgram().
		PushUint(0).Op(vm.CALLDATALOAD).
		PushUint(0xe0).Op(vm.SHR).
		PushBytes(evmasm.BalanceOfSelector[:]).Op(vm.EQ)
	body := p.Len() + 2 + 1 + 4
	return p.PushUint(uint64(body)).Op(vm.JUMPI).
		PushUint(0).Op(vm.DUP1).Op(vm.REVERT).
		Op(vm.JUMPDEST).
		PushUint(4).Op(vm.CALLDATALOAD).
		PushUint(0).Op(vm.MSTORE).
		PushUint(32).PushUint(0).Op(vm.KECCAK256).
		Op(vm.SLOAD).
		PushUint(0).Op(vm.MSTORE).
		PushUint(32).PushUint(0).Op(vm.RETURN).
		Bytes()
}()

// revertCode reverts with revertData.
var revertCode = evmasm.NewProgram().
	PushBytes(revertData).PushUint(0).Op(vm.MSTORE).
	PushUint(32).PushUint(0).Op(vm.REVERT).
	Bytes()

// State is the chain state visible to a program.
type State struct {
	// Native maps holder → native balance.
	Native map[common.Address]*big.Int
	// Tokens maps token → holder → balance.
	Tokens map[common.Address]map[common.Address]*big.Int
	// Reverting lists tokens whose calls revert with data.
	Reverting map[common.Address]bool
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Native:    make(map[common.Address]*big.Int),
		Tokens:    make(map[common.Address]map[common.Address]*big.Int),
		Reverting: make(map[common.Address]bool),
	}
}

// SetNative sets a holder's native balance.
func (s *State) SetNative(holder common.Address, v *big.Int) {
	s.Native[holder] = new(big.Int).Set(v)
}

// SetToken sets a holder's balance of token. The token gains code on first use.
func (s *State) SetToken(token, holder common.Address, v *big.Int) {
	if s.Tokens[token] == nil {
		s.Tokens[token] = make(map[common.Address]*big.Int)
	}
	s.Tokens[token][holder] = new(big.Int).Set(v)
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := NewState()
	for k, v := range s.Native {
		out.SetNative(k, v)
	}
	for tok, holders := range s.Tokens {
		out.Tokens[tok] = make(map[common.Address]*big.Int)
		for h, v := range holders {
			out.SetToken(tok, h, v)
		}
	}
	for k, v := range s.Reverting {
		out.Reverting[k] = v
	}
	return out
}

func holderSlot(holder common.Address) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(holder.Bytes(), 32))
}

// stateDB materializes s as an in-memory go-ethereum state.
func (s *State) stateDB() (*state.StateDB, error) {
	db, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		return nil, err
	}
	for holder, v := range s.Native {
		bal, overflow := uint256.FromBig(v)
		if overflow || v.Sign() < 0 {
			return nil, fmt.Errorf("native balance of %s out of range", holder.Hex())
		}
		db.SetBalance(holder, bal, tracing.BalanceChangeUnspecified)
	}
	for token, holders := range s.Tokens {
		db.SetCode(token, tokenCode)
		for holder, v := range holders {
			db.SetState(token, holderSlot(holder), common.BigToHash(v))
		}
	}
	for token, reverting := range s.Reverting {
		if reverting {
			db.SetCode(token, revertCode)
		}
	}
	return db, nil
}

// Call executes a message call to token. Addresses without code succeed
// with empty return data, as on a real chain.
func (s *State) Call(to common.Address, data []byte) (ret []byte, ok bool) {
	db, err := s.stateDB()
	if err != nil {
		return nil, false
	}
	ret, _, err = runtime.Call(to, data, &runtime.Config{State: db})
	return ret, err == nil
}

// Run executes code as the body of a call and returns the RETURN data.
func (s *State) Run(code []byte) ([]byte, error) {
	db, err := s.stateDB()
	if err != nil {
		return nil, err
	}
	ret, _, err := runtime.Execute(code, nil, &runtime.Config{State: db})
	if errors.Is(err, vm.ErrExecutionReverted) {
		return nil, fmt.Errorf("program reverted: %x", ret)
	}
	return ret, err
}
