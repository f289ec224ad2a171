// Package decoder turns raw transaction logs into typed domain events.
// Each known event signature maps to a versioned ABI shape; the same
// logical event can have several incompatible encodings, so the registry
// is keyed by topic hash rather than event name.
package decoder

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	apperrors "github.com/fill-tracker/internal/errors"
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/types"
)

// BridgeFill with a numeric source identifier (protocol v4, early encoding)
const bridgeFillUint256ABIJSON = `[{
  "anonymous": false,
  "inputs": [
    {"indexed": false, "internalType": "uint256", "name": "source", "type": "uint256"},
    {"indexed": false, "internalType": "address", "name": "inputToken", "type": "address"},
    {"indexed": false, "internalType": "address", "name": "outputToken", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "inputTokenAmount", "type": "uint256"},
    {"indexed": false, "internalType": "uint256", "name": "outputTokenAmount", "type": "uint256"}
  ],
  "name": "BridgeFill",
  "type": "event"
}]`

// BridgeFill with a string source identifier (protocol v4, later encoding)
const bridgeFillStringABIJSON = `[{
  "anonymous": false,
  "inputs": [
    {"indexed": false, "internalType": "string", "name": "source", "type": "string"},
    {"indexed": false, "internalType": "address", "name": "inputToken", "type": "address"},
    {"indexed": false, "internalType": "address", "name": "outputToken", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "inputTokenAmount", "type": "uint256"},
    {"indexed": false, "internalType": "uint256", "name": "outputTokenAmount", "type": "uint256"}
  ],
  "name": "BridgeFill",
  "type": "event"
}]`

// ERC20BridgeTransfer (protocol v3)
const erc20BridgeTransferABIJSON = `[{
  "anonymous": false,
  "inputs": [
    {"indexed": false, "internalType": "address", "name": "fromToken", "type": "address"},
    {"indexed": false, "internalType": "address", "name": "toToken", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "fromTokenAmount", "type": "uint256"},
    {"indexed": false, "internalType": "uint256", "name": "toTokenAmount", "type": "uint256"},
    {"indexed": false, "internalType": "address", "name": "from", "type": "address"},
    {"indexed": false, "internalType": "address", "name": "to", "type": "address"}
  ],
  "name": "ERC20BridgeTransfer",
  "type": "event"
}]`

// decodeFunc unpacks a matched log's data into a typed payload
type decodeFunc func(values []interface{}) (interface{}, error)

type registryEntry struct {
	contractABI     abi.ABI
	eventName       string
	eventType       types.EventType
	protocolVersion types.ProtocolVersion
	decode          decodeFunc
}

// Decoder matches raw logs against the registry of known event signatures
type Decoder struct {
	entries map[common.Hash]registryEntry
}

// New builds a decoder with all known bridge event shapes registered
func New() (*Decoder, error) {
	entries := make(map[common.Hash]registryEntry)

	for _, reg := range []struct {
		abiJSON         string
		eventName       string
		eventType       types.EventType
		protocolVersion types.ProtocolVersion
		decode          decodeFunc
	}{
		{bridgeFillUint256ABIJSON, "BridgeFill", types.EventBridgeFill, types.ProtocolV4, decodeBridgeFillUint256},
		{bridgeFillStringABIJSON, "BridgeFill", types.EventBridgeFill, types.ProtocolV4, decodeBridgeFillString},
		{erc20BridgeTransferABIJSON, "ERC20BridgeTransfer", types.EventERC20BridgeTransfer, types.ProtocolV3, decodeBridgeTransfer},
	} {
		contractABI, err := abi.JSON(strings.NewReader(reg.abiJSON))
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", reg.eventName, err)
		}

		event, ok := contractABI.Events[reg.eventName]
		if !ok {
			return nil, fmt.Errorf("abi is missing event %s", reg.eventName)
		}

		entries[event.ID] = registryEntry{
			contractABI:     contractABI,
			eventName:       reg.eventName,
			eventType:       reg.eventType,
			protocolVersion: reg.protocolVersion,
			decode:          reg.decode,
		}
	}

	return &Decoder{entries: entries}, nil
}

// DecodeReceipt produces the domain events embedded in a transaction
// receipt. Logs whose topic does not match any registered signature are
// skipped; a matching log with non-conforming data is a fatal decode error
// for the whole receipt.
func (d *Decoder) DecodeReceipt(receipt *ethtypes.Receipt) ([]*models.Event, error) {
	var events []*models.Event

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 {
			continue
		}

		entry, ok := d.entries[log.Topics[0]]
		if !ok {
			continue
		}

		event, err := d.decodeLog(entry, log)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

func (d *Decoder) decodeLog(entry registryEntry, log *ethtypes.Log) (*models.Event, error) {
	values, err := entry.contractABI.Unpack(entry.eventName, log.Data)
	if err != nil {
		return nil, apperrors.NewDecodeError(log.Topics[0].Hex(), err)
	}

	payload, err := entry.decode(values)
	if err != nil {
		return nil, apperrors.NewDecodeError(log.Topics[0].Hex(), err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewDecodeError(log.Topics[0].Hex(), err)
	}

	return &models.Event{
		TransactionHash: log.TxHash.Hex(),
		LogIndex:        log.Index,
		BlockNumber:     log.BlockNumber,
		Type:            entry.eventType,
		ProtocolVersion: entry.protocolVersion,
		Data:            data,
	}, nil
}

func decodeBridgeFillUint256(values []interface{}) (interface{}, error) {
	if len(values) != 5 {
		return nil, fmt.Errorf("expected 5 values, got %d", len(values))
	}

	source, err := asBigInt(values[0], "source")
	if err != nil {
		return nil, err
	}
	inputToken, err := asAddress(values[1], "inputToken")
	if err != nil {
		return nil, err
	}
	outputToken, err := asAddress(values[2], "outputToken")
	if err != nil {
		return nil, err
	}
	inputTokenAmount, err := asBigInt(values[3], "inputTokenAmount")
	if err != nil {
		return nil, err
	}
	outputTokenAmount, err := asBigInt(values[4], "outputTokenAmount")
	if err != nil {
		return nil, err
	}

	return &models.BridgeFillData{
		Source:            source.String(),
		InputToken:        inputToken.Hex(),
		OutputToken:       outputToken.Hex(),
		InputTokenAmount:  inputTokenAmount.String(),
		OutputTokenAmount: outputTokenAmount.String(),
	}, nil
}

func decodeBridgeFillString(values []interface{}) (interface{}, error) {
	if len(values) != 5 {
		return nil, fmt.Errorf("expected 5 values, got %d", len(values))
	}

	source, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("source: expected string, got %T", values[0])
	}
	inputToken, err := asAddress(values[1], "inputToken")
	if err != nil {
		return nil, err
	}
	outputToken, err := asAddress(values[2], "outputToken")
	if err != nil {
		return nil, err
	}
	inputTokenAmount, err := asBigInt(values[3], "inputTokenAmount")
	if err != nil {
		return nil, err
	}
	outputTokenAmount, err := asBigInt(values[4], "outputTokenAmount")
	if err != nil {
		return nil, err
	}

	return &models.BridgeFillData{
		Source:            source,
		InputToken:        inputToken.Hex(),
		OutputToken:       outputToken.Hex(),
		InputTokenAmount:  inputTokenAmount.String(),
		OutputTokenAmount: outputTokenAmount.String(),
	}, nil
}

func decodeBridgeTransfer(values []interface{}) (interface{}, error) {
	if len(values) != 6 {
		return nil, fmt.Errorf("expected 6 values, got %d", len(values))
	}

	fromToken, err := asAddress(values[0], "fromToken")
	if err != nil {
		return nil, err
	}
	toToken, err := asAddress(values[1], "toToken")
	if err != nil {
		return nil, err
	}
	fromTokenAmount, err := asBigInt(values[2], "fromTokenAmount")
	if err != nil {
		return nil, err
	}
	toTokenAmount, err := asBigInt(values[3], "toTokenAmount")
	if err != nil {
		return nil, err
	}
	from, err := asAddress(values[4], "from")
	if err != nil {
		return nil, err
	}
	to, err := asAddress(values[5], "to")
	if err != nil {
		return nil, err
	}

	return &models.BridgeTransferData{
		From:            from.Hex(),
		To:              to.Hex(),
		FromToken:       fromToken.Hex(),
		ToToken:         toToken.Hex(),
		FromTokenAmount: fromTokenAmount.String(),
		ToTokenAmount:   toTokenAmount.String(),
	}, nil
}

func asAddress(value interface{}, field string) (common.Address, error) {
	address, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: expected address, got %T", field, value)
	}
	return address, nil
}

func asBigInt(value interface{}, field string) (*big.Int, error) {
	n, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: expected uint256, got %T", field, value)
	}
	return n, nil
}
