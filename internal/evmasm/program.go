// Package evmasm assembles the small EVM programs used to read many
// balances with one eth_call.
//
// The node executes the program as contract-creation code against the
// requested block, and whatever the program RETURNs comes back as the
// call result. No contract is ever deployed.
package evmasm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// Program is an append-only bytecode builder.
type Program struct {
	code []byte
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{}
}

// Op appends a single opcode.
func (p *Program) Op(op vm.OpCode) *Program {
	p.code = append(p.code, byte(op))
	return p
}

// PushBytes appends PUSHn followed by b. b must be 1 to 32 bytes long.
func (p *Program) PushBytes(b []byte) *Program {
	if len(b) == 0 || len(b) > 32 {
		panic("evmasm: push width must be 1..32 bytes")
	}
	p.code = append(p.code, byte(vm.PUSH1)+byte(len(b)-1))
	p.code = append(p.code, b...)
	return p
}

// Push appends the shortest PUSH that encodes v. Zero is pushed as PUSH1 0x00
// so the program runs on nodes without PUSH0.
func (p *Program) Push(v *big.Int) *Program {
	b := v.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	return p.PushBytes(b)
}

// PushUint appends the shortest PUSH that encodes n.
func (p *Program) PushUint(n uint64) *Program {
	return p.Push(new(big.Int).SetUint64(n))
}

// PushAddress appends PUSH20 addr.
func (p *Program) PushAddress(addr common.Address) *Program {
	return p.PushBytes(addr.Bytes())
}

// Len returns the current code size.
func (p *Program) Len() int {
	return len(p.code)
}

// Bytes returns a copy of the assembled code.
func (p *Program) Bytes() []byte {
	out := make([]byte, len(p.code))
	copy(out, p.code)
	return out
}
