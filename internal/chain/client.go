// Package chain is the thin RPC boundary. It adapts a JSON-RPC endpoint to
// the batched-read capability the fetcher consumes; everything above it is
// transport-agnostic.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"arbscope/internal/fetch"
)

// Client wraps go-ethereum RPC and implements fetch.BatchReader.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// callParams is the eth_call argument object for a batched element.
type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// BatchRead executes the requests as a single JSON-RPC batch of eth_call at
// the latest block. One call is one remote round trip; per-request failures
// are reported in the results, and the error return is reserved for the whole
// batch failing.
func (c *Client) BatchRead(ctx context.Context, reqs []fetch.ReadRequest) ([]fetch.ReadResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	elems := make([]rpc.BatchElem, len(reqs))
	outputs := make([]hexutil.Bytes, len(reqs))
	for i, req := range reqs {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				callParams{To: req.To.Hex(), Data: hexutil.Encode(req.Data)},
				"latest",
			},
			Result: &outputs[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch call: %w", err)
	}

	results := make([]fetch.ReadResult, len(reqs))
	for i, elem := range elems {
		if elem.Error != nil {
			results[i] = fetch.ReadResult{Err: elem.Error}
			continue
		}
		results[i] = fetch.ReadResult{Data: outputs[i]}
	}
	return results, nil
}
