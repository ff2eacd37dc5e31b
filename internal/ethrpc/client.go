// Package ethrpc is the chain client used by the watcher: eth_call,
// eth_blockNumber and new-head notifications over go-ethereum's RPC stack.
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	mlog "github.com/Klingon-tech/monterrey/internal/log"
)

// Defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultCallTimeout  = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// PollInterval is used when the endpoint cannot push new heads.
	PollInterval time.Duration
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit int
	// CallTimeout bounds each request. Zero uses DefaultCallTimeout.
	CallTimeout time.Duration
	Logger      *zerolog.Logger
}

// Client wraps an ethclient with a circuit breaker and rate limiter.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	breaker *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
	opts    Options
	logger  zerolog.Logger
}

// Dial connects to url (http, https, ws, wss or ipc path).
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewClient(rc, opts), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(rc *rpc.Client, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	logger := mlog.RPC
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	limiter := ratelimit.NewUnlimited()
	if opts.RateLimit > 0 {
		limiter = ratelimit.New(opts.RateLimit)
	}

	return &Client{
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		breaker: newCircuitBreaker(logger),
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

func newCircuitBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "node",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn().Str("breaker", name).Msg("Node seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info().Str("breaker", name).Msg("Checking node status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info().Str("breaker", name).Msg("Node seems ok, allowing requests again")
			}
		},
	})
}

// result carries a node-side error through the breaker without counting it
// as a transport failure.
type result struct {
	val interface{}
	err error
}

func (c *Client) do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	c.limiter.Take()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
		v, err := fn(cctx)
		var rpcErr rpc.Error
		if err != nil && errors.As(err, &rpcErr) {
			return result{err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return result{val: v}, nil
	})
	if err != nil {
		return nil, err
	}
	r := out.(result)
	return r.val, r.err
}

// CallCode executes data as contract-creation code at block (nil = latest)
// and returns what it RETURNs. Nothing is deployed.
func (c *Client) CallCode(ctx context.Context, data []byte, block *big.Int) ([]byte, error) {
	v, err := c.do(ctx, func(ctx context.Context) (interface{}, error) {
		return c.eth.CallContract(ctx, ethereum.CallMsg{Data: data}, block)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// CallContract performs eth_call against the contract at to.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	v, err := c.do(ctx, func(ctx context.Context) (interface{}, error) {
		return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// BlockNumber returns the chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	v, err := c.do(ctx, func(ctx context.Context) (interface{}, error) {
		return c.eth.BlockNumber(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// ChainID returns the endpoint's chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	v, err := c.do(ctx, func(ctx context.Context) (interface{}, error) {
		return c.eth.ChainID(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// SubscribeHeads streams new head numbers. It uses eth_subscribe when the
// endpoint supports it and otherwise polls BlockNumber every PollInterval.
// The channel closes after the returned function is called or ctx ends.
func (c *Client) SubscribeHeads(ctx context.Context) (<-chan uint64, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan uint64, 16)

	headers := make(chan *types.Header, 16)
	sub, err := c.eth.SubscribeNewHead(ctx, headers)
	if err != nil {
		if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
			c.logger.Warn().Err(err).Msg("Head subscription unavailable, polling")
		}
		go c.poll(ctx, out)
	} else {
		go c.forward(ctx, sub, headers, out)
	}

	var once sync.Once
	return out, func() { once.Do(cancel) }, nil
}

func (c *Client) forward(ctx context.Context, sub ethereum.Subscription, headers <-chan *types.Header, out chan<- uint64) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			close(out)
			return
		case err := <-sub.Err():
			c.logger.Warn().Err(err).Msg("Head subscription dropped, polling")
			c.poll(ctx, out)
			return
		case h := <-headers:
			send(out, h.Number.Uint64())
		}
	}
}

func (c *Client) poll(ctx context.Context, out chan<- uint64) {
	defer close(out)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		head, err := c.BlockNumber(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			c.logger.Warn().Err(err).Msg("Poll head failed")
		case err == nil && head > last:
			last = head
			send(out, head)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// send drops head when the receiver is behind; a later head supersedes it.
func send(out chan<- uint64, head uint64) {
	select {
	case out <- head:
	default:
	}
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}
