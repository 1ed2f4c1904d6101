package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the read-only chain surface the sync engine consumes. It is
// satisfied by *ethclient.Client; tests substitute fakes.
type Client interface {
	// BlockNumber returns the current chain head height.
	BlockNumber(ctx context.Context) (uint64, error)
	// FilterLogs returns event logs matching the query. Endpoints clamp
	// a ToBlock beyond the head to the available range.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	// CallContract performs an eth_call at the given block (nil = latest).
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var (
	_ Client = (*ethclient.Client)(nil)
	_ Client = (*RPCClient)(nil)
)

// RPCClient wraps a go-ethereum RPC connection.
type RPCClient struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// Dial connects to the RPC URL.
func Dial(ctx context.Context, rpcURL string) (*RPCClient, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return &RPCClient{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC connection.
func (c *RPCClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// BlockNumber returns the latest block number.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// FilterLogs returns logs matching the query.
func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.ethClient.FilterLogs(ctx, q)
}

// CallContract performs an eth_call.
func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
