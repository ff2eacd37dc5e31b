package evmtest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethhex "github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Service serves the eth_ namespace from a Node.
type Service struct {
	node    *Node
	chainID int64

	mu         sync.Mutex
	recipients []interface{}
}

// NewServer returns an RPC server exposing node under the eth namespace.
func NewServer(node *Node, chainID int64) (*rpc.Server, *Service, error) {
	svc := &Service{node: node, chainID: chainID}
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", svc); err != nil {
		return nil, nil, err
	}
	return srv, svc, nil
}

// Recipients returns the "to" field of every eth_call received, in order.
// Code calls record nil.
func (s *Service) Recipients() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]interface{}(nil), s.recipients...)
}

func blockArg(tag string) (*big.Int, error) {
	if tag == "latest" || tag == "" {
		return nil, nil
	}
	return gethhex.DecodeBig(tag)
}

// Call implements eth_call.
func (s *Service) Call(args map[string]interface{}, tag string) (gethhex.Bytes, error) {
	s.mu.Lock()
	s.recipients = append(s.recipients, args["to"])
	s.mu.Unlock()

	raw, _ := args["input"].(string)
	if raw == "" {
		raw, _ = args["data"].(string)
	}
	data, err := gethhex.Decode(raw)
	if err != nil {
		return nil, err
	}
	block, err := blockArg(tag)
	if err != nil {
		return nil, err
	}
	if to, ok := args["to"].(string); ok && to != "" {
		return s.node.CallContract(context.Background(), common.HexToAddress(to), data, block)
	}
	return s.node.CallCode(context.Background(), data, block)
}

// BlockNumber implements eth_blockNumber.
func (s *Service) BlockNumber() (gethhex.Uint64, error) {
	n, err := s.node.BlockNumber(context.Background())
	return gethhex.Uint64(n), err
}

// ChainId implements eth_chainId.
func (s *Service) ChainId() *gethhex.Big {
	return (*gethhex.Big)(big.NewInt(s.chainID))
}
