// Package chain provides access to the Ethereum node used for block,
// transaction, receipt and token metadata lookups.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fill-tracker/internal/config"
)

// Client wraps the JSON-RPC client with request timeouts
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
}

// NewClient dials the configured RPC endpoint
func NewClient(cfg *config.ChainConfig) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint %s: %w", cfg.RPCEndpoint, err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{eth: eth, timeout: timeout}, nil
}

// Close releases the underlying RPC connection
func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// BlockByNumber retrieves a full block. Returns nil when the node does not
// know the block.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*ethtypes.Block, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	block, err := c.eth.BlockByNumber(ctx, newBigInt(number))
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", number, err)
	}

	return block, nil
}

// TransactionReceipt retrieves the receipt for a mined transaction
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt for %s: %w", hash.Hex(), err)
	}

	return receipt, nil
}

// CodeAt retrieves the contract code deployed at an address. An empty
// result means the address is externally owned.
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	code, err := c.eth.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch code at %s: %w", address.Hex(), err)
	}

	return code, nil
}
