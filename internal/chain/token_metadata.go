package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// TokenMetadata holds the on-chain metadata needed to price a token leg.
// Symbol is empty and Decimals nil when the token does not expose them.
type TokenMetadata struct {
	Symbol   string
	Decimals *uint8
}

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// TokenMetadata resolves symbol and decimals for an ERC-20 token. Tokens
// that return bytes32 symbols (MKR and friends) are handled via a fallback
// call. A token missing either field yields partially-populated metadata
// rather than an error; transport failures are errors.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	meta := &TokenMetadata{}

	if values, err := c.callContract(ctx, token, stringABI, "decimals"); err == nil && len(values) == 1 {
		if decimals, ok := values[0].(uint8); ok {
			meta.Decimals = &decimals
		}
	} else if err != nil && isTransportError(err) {
		return nil, err
	}

	if values, err := c.callContract(ctx, token, stringABI, "symbol"); err == nil && len(values) == 1 {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if err != nil && isTransportError(err) {
		return nil, err
	}

	if meta.Symbol == "" {
		meta.Symbol = c.symbolBytes32(ctx, token)
	}

	return meta, nil
}

// symbolBytes32 tries the bytes32 symbol encoding, returning "" on any
// failure
func (c *Client) symbolBytes32(ctx context.Context, token common.Address) string {
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return ""
	}

	values, err := c.callContract(ctx, token, bytes32ABI, "symbol")
	if err != nil || len(values) != 1 {
		return ""
	}

	raw, ok := values[0].([32]byte)
	if !ok {
		return ""
	}

	return string(bytes.TrimRight(raw[:], "\x00"))
}

func (c *Client) callContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string) ([]interface{}, error) {
	input, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}

	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, &decodeError{method: method, cause: err}
	}

	return values, nil
}

// decodeError marks failures that stem from the contract's response shape
// rather than from transport; callers degrade these to missing metadata.
type decodeError struct {
	method string
	cause  error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("unpack %s: %v", e.method, e.cause)
}

func (e *decodeError) Unwrap() error {
	return e.cause
}

func isTransportError(err error) bool {
	_, isDecode := err.(*decodeError)
	return !isDecode
}

func newBigInt(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
