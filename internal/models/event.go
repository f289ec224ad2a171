package models

import (
	"encoding/json"

	"github.com/fill-tracker/internal/types"
)

// Event represents a decoded on-chain occurrence tied to a transaction.
// The (TransactionHash, LogIndex) pair is unique. Events are immutable
// except for the scheduler flag, which transitions only unset -> true.
type Event struct {
	ID              string                `json:"id"`
	TransactionHash string                `json:"transactionHash"`
	LogIndex        uint                  `json:"logIndex"`
	BlockNumber     uint64                `json:"blockNumber"`
	Type            types.EventType       `json:"type"`
	ProtocolVersion types.ProtocolVersion `json:"protocolVersion"`
	Data            json.RawMessage       `json:"data"`
	Scheduler       EventScheduler        `json:"scheduler"`
}

// EventScheduler holds scheduling state for an event. FillCreationScheduled
// is nil until a fill-creation job has been published for the event.
type EventScheduler struct {
	FillCreationScheduled *bool `json:"fillCreationScheduled"`
}

// IsFillCreationScheduled reports whether a fill-creation job has been
// published for this event
func (e *Event) IsFillCreationScheduled() bool {
	return e.Scheduler.FillCreationScheduled != nil && *e.Scheduler.FillCreationScheduled
}

// BridgeFillData is the payload of a BridgeFill event. Numeric amounts are
// stringified to avoid precision loss.
type BridgeFillData struct {
	Source            string `json:"source"`
	InputToken        string `json:"inputToken"`
	OutputToken       string `json:"outputToken"`
	InputTokenAmount  string `json:"inputTokenAmount"`
	OutputTokenAmount string `json:"outputTokenAmount"`
}

// BridgeTransferData is the payload of an ERC20BridgeTransfer event
type BridgeTransferData struct {
	From            string `json:"from"`
	To              string `json:"to"`
	FromToken       string `json:"fromToken"`
	ToToken         string `json:"toToken"`
	FromTokenAmount string `json:"fromTokenAmount"`
	ToTokenAmount   string `json:"toTokenAmount"`
}
