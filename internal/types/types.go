// Package types provides common type definitions for the fill tracker system.
package types

// FillActor represents a side of a trade
type FillActor string

const (
	// ActorMaker represents the maker side of a fill
	ActorMaker FillActor = "maker"
	// ActorTaker represents the taker side of a fill
	ActorTaker FillActor = "taker"
)

// EventType represents the protocol semantics of a decoded on-chain event
type EventType string

const (
	// EventBridgeFill represents a fill routed through a bridge contract
	EventBridgeFill EventType = "BridgeFill"
	// EventERC20BridgeTransfer represents a legacy bridge transfer
	EventERC20BridgeTransfer EventType = "ERC20BridgeTransfer"
	// EventLimitOrderFilled represents a limit order fill
	EventLimitOrderFilled EventType = "LimitOrderFilled"
	// EventLiquidityProviderSwap represents a swap against a liquidity provider
	EventLiquidityProviderSwap EventType = "LiquidityProviderSwap"
	// EventRfqOrderFilled represents an RFQ order fill
	EventRfqOrderFilled EventType = "RfqOrderFilled"
	// EventSushiswapSwap represents a swap routed through Sushiswap
	EventSushiswapSwap EventType = "SushiswapSwap"
	// EventTransformedERC20 represents an ERC20 transformation
	EventTransformedERC20 EventType = "TransformedERC20"
	// EventUniswapV2Swap represents a swap routed through Uniswap V2
	EventUniswapV2Swap EventType = "UniswapV2Swap"
)

// FillCreationEventTypes lists the event types that produce fills and are
// therefore eligible for fill creation scheduling.
var FillCreationEventTypes = []EventType{
	EventLimitOrderFilled,
	EventLiquidityProviderSwap,
	EventRfqOrderFilled,
	EventSushiswapSwap,
	EventTransformedERC20,
	EventUniswapV2Swap,
}

// ProtocolVersion represents the ABI/schema generation that produced an event.
// The same logical event type may have multiple incompatible on-chain
// encodings over time.
type ProtocolVersion int

const (
	// ProtocolV3 represents the v3 event encodings
	ProtocolV3 ProtocolVersion = 3
	// ProtocolV4 represents the v4 event encodings
	ProtocolV4 ProtocolVersion = 4
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
