package evmtest

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrReverted is returned by CallContract when the callee reverts.
var ErrReverted = errors.New("execution reverted")

// Node is an in-memory chain answering eth_call-style requests from
// per-block state snapshots.
type Node struct {
	mu     sync.Mutex
	states map[uint64]*State
	head   uint64
	subs   map[int]chan uint64
	nextID int

	// Err, when set, fails every call.
	Err error
	// CodeCalls counts CallCode invocations.
	CodeCalls int
}

// NewNode returns a node whose head is 0 with an empty state.
func NewNode() *Node {
	return &Node{
		states: map[uint64]*State{0: NewState()},
		subs:   make(map[int]chan uint64),
	}
}

// SetState records st as the state from block onwards.
func (n *Node) SetState(block uint64, st *State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states[block] = st.Clone()
}

// Mine sets the head to block and notifies subscribers.
func (n *Node) Mine(block uint64) {
	n.mu.Lock()
	n.head = block
	subs := make([]chan uint64, 0, len(n.subs))
	for _, ch := range n.subs {
		subs = append(subs, ch)
	}
	n.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- block:
		default:
		}
	}
}

// stateAt returns the latest snapshot at or below block. Callers hold mu.
func (n *Node) stateAt(block *big.Int) *State {
	target := n.head
	if block != nil {
		target = block.Uint64()
	}
	keys := make([]uint64, 0, len(n.states))
	for k := range n.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	st := n.states[keys[0]]
	for _, k := range keys {
		if k > target {
			break
		}
		st = n.states[k]
	}
	return st
}

// CallCode executes data as creation code against the state at block.
func (n *Node) CallCode(_ context.Context, data []byte, block *big.Int) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CodeCalls++
	if n.Err != nil {
		return nil, n.Err
	}
	return n.stateAt(block).Run(data)
}

// CallContract calls to with data against the state at block.
func (n *Node) CallContract(_ context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return nil, n.Err
	}
	ret, ok := n.stateAt(block).Call(to, data)
	if !ok {
		return nil, ErrReverted
	}
	return ret, nil
}

// BlockNumber returns the head.
func (n *Node) BlockNumber(context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return 0, n.Err
	}
	return n.head, nil
}

// SubscribeHeads delivers every subsequent Mine. Slow receivers miss heads.
func (n *Node) SubscribeHeads(ctx context.Context) (<-chan uint64, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	ch := make(chan uint64, 16)
	n.subs[id] = ch

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
	return ch, unsub, nil
}
