// Package balance reads native and token balances for many addresses.
package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/monterrey/internal/evmasm"
)

// MaxParallel bounds concurrent balanceOf calls in FetchTokenBalances.
const MaxParallel = 8

// ErrResultCount is returned when the call result holds the wrong number of words.
var ErrResultCount = errors.New("balance: unexpected result count")

const erc20ABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Caller executes read-only calls at a block. A nil block means latest.
type Caller interface {
	// CallCode runs data as creation code and returns what it RETURNs.
	CallCode(ctx context.Context, data []byte, block *big.Int) ([]byte, error)
	// CallContract calls the contract at to with data.
	CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error)
}

// Balances holds one address's native balance and its token balances in
// configured token order.
type Balances struct {
	Native *big.Int
	Tokens []*big.Int
}

// Fetcher reads balances through a Caller.
type Fetcher struct {
	caller      Caller
	maxParallel int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxParallel overrides MaxParallel.
func WithMaxParallel(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxParallel = n
		}
	}
}

// NewFetcher creates a fetcher over caller.
func NewFetcher(caller Caller, opts ...Option) *Fetcher {
	f := &Fetcher{caller: caller, maxParallel: MaxParallel}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchBalances returns native and token balances of every address at block
// using a single eth_call. Results are in address order.
func (f *Fetcher) FetchBalances(ctx context.Context, addrs, tokens []common.Address, block *big.Int) ([]Balances, error) {
	if len(addrs) == 0 {
		return []Balances{}, nil
	}

	code := evmasm.Balances(addrs, tokens)
	ret, err := f.caller.CallCode(ctx, code, block)
	if err != nil {
		return nil, fmt.Errorf("balance call: %w", err)
	}
	words, err := evmasm.DecodeWords(ret)
	if err != nil {
		return nil, err
	}

	stride := 1 + len(tokens)
	if want := len(addrs) * stride; len(words) != want {
		return nil, fmt.Errorf("%w: got %d words, want %d", ErrResultCount, len(words), want)
	}

	out := make([]Balances, len(addrs))
	for i := range addrs {
		row := words[i*stride : (i+1)*stride]
		out[i] = Balances{Native: row[0], Tokens: row[1:]}
	}
	return out, nil
}

// FetchNativeBalances returns only native balances, in address order.
func (f *Fetcher) FetchNativeBalances(ctx context.Context, addrs []common.Address, block *big.Int) ([]*big.Int, error) {
	rows, err := f.FetchBalances(ctx, addrs, nil, block)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(rows))
	for i, r := range rows {
		out[i] = r.Native
	}
	return out, nil
}

// FetchTokenBalances calls balanceOf on token once per address. It is
// slower than FetchBalances but surfaces per-address call errors, which
// makes it useful for auditing a batched read.
func (f *Fetcher) FetchTokenBalances(ctx context.Context, token common.Address, addrs []common.Address, block *big.Int) (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxParallel)
	for _, addr := range addrs {
		g.Go(func() error {
			bal, err := f.balanceOf(gctx, token, addr, block)
			if err != nil {
				return fmt.Errorf("balanceOf %s on %s: %w", addr.Hex(), token.Hex(), err)
			}
			mu.Lock()
			out[addr] = bal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) balanceOf(ctx context.Context, token, holder common.Address, block *big.Int) (*big.Int, error) {
	data, err := erc20.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}
	ret, err := f.caller.CallContract(ctx, token, data, block)
	if err != nil {
		return nil, err
	}
	vals, err := erc20.Unpack("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode: unexpected type %T", vals[0])
	}
	return bal, nil
}
