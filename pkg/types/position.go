package types

import (
	"github.com/shopspring/decimal"
)

// ManagedState tags whether a position was opened through this SDK.
type ManagedState string

const (
	ManagedStateManaged  ManagedState = "managed"
	ManagedStateExternal ManagedState = "external"
	ManagedStateUnknown  ManagedState = "unknown"
)

// LogicalPosition normalizes a venue position across markets. Side and
// Size are derived from the signed venue size; markets are referenced by
// (BaseAsset, Coin) value copy, never back into the registry.
type LogicalPosition struct {
	BaseAsset        string           `json:"base_asset"`
	Coin             string           `json:"coin"`
	Side             Side             `json:"side"`
	Size             decimal.Decimal  `json:"size"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	MarkPrice        decimal.Decimal  `json:"mark_price"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealized_pnl"`
	Leverage         int              `json:"leverage"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty"`
	ManagedBySDK     ManagedState     `json:"managed_by_sdk"`
}
