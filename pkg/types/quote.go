package types

import (
	"github.com/shopspring/decimal"
)

// SimulationResult is the output of walking one book side.
type SimulationResult struct {
	AvgPrice       decimal.Decimal `json:"avg_price"`
	MidPrice       decimal.Decimal `json:"mid_price"`
	PriceImpactBps decimal.Decimal `json:"price_impact_bps"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	FilledSize     decimal.Decimal `json:"filled_size"`
}

// MarketScore ranks one market for a given order. Lower is better.
type MarketScore struct {
	Market          PerpMarket        `json:"market"`
	PriceImpact     decimal.Decimal   `json:"price_impact"`
	FundingRate     decimal.Decimal   `json:"funding_rate"`
	CollateralMatch bool              `json:"collateral_match"`
	SwapCostBps     decimal.Decimal   `json:"swap_cost_bps,omitempty"`
	TotalScore      decimal.Decimal   `json:"total_score"`
	Reason          string            `json:"reason,omitempty"`
	Simulation      *SimulationResult `json:"-"`
}

// OrderKind tags the wire order type on a plan leg.
type OrderKind string

const (
	OrderKindIocLimit OrderKind = "ioc_limit"
	OrderKindGtcLimit OrderKind = "gtc_limit"
)

// ExecutionPlan is a single reviewed leg ready for submission.
type ExecutionPlan struct {
	Market     PerpMarket      `json:"market"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	OrderKind  OrderKind       `json:"order_type"`
	Slippage   decimal.Decimal `json:"slippage"`
}

// Quote is a reviewable single-market routing decision.
type Quote struct {
	BaseAsset               string          `json:"base_asset"`
	Side                    Side            `json:"side"`
	RequestedSize           decimal.Decimal `json:"requested_size"`
	SelectedMarket          PerpMarket      `json:"selected_market"`
	EstimatedAvgPrice       decimal.Decimal `json:"estimated_avg_price"`
	EstimatedPriceImpactBps decimal.Decimal `json:"estimated_price_impact_bps"`
	EstimatedFundingRate    decimal.Decimal `json:"estimated_funding_rate"`
	AlternativesConsidered  []MarketScore   `json:"alternatives_considered"`
	Warnings                []string        `json:"warnings,omitempty"`
	Plan                    *ExecutionPlan  `json:"plan"`
}

// SplitAllocation assigns part of an order to one market.
type SplitAllocation struct {
	Market            PerpMarket      `json:"market"`
	Size              decimal.Decimal `json:"size"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	EstimatedAvgPrice decimal.Decimal `json:"estimated_avg_price"`
	Proportion        decimal.Decimal `json:"proportion"`
}

// SplitResult is the optimizer output before plan construction.
type SplitResult struct {
	Allocations        []SplitAllocation `json:"allocations"`
	AggregateAvgPrice  decimal.Decimal   `json:"aggregate_avg_price"`
	AggregateImpactBps decimal.Decimal   `json:"aggregate_impact_bps"`
	TotalSize          decimal.Decimal   `json:"total_size"`
	TotalCost          decimal.Decimal   `json:"total_cost"`
}

// SplitExecutionPlan is a multi-leg plan plus its collateral plan.
type SplitExecutionPlan struct {
	Legs           []ExecutionPlan `json:"legs"`
	CollateralPlan *CollateralPlan `json:"collateral_plan"`
	Side           Side            `json:"side"`
	TotalSize      decimal.Decimal `json:"total_size"`
	Slippage       decimal.Decimal `json:"slippage"`
}

// SplitQuote is the reviewable multi-market routing decision.
type SplitQuote struct {
	BaseAsset          string              `json:"base_asset"`
	Side               Side                `json:"side"`
	RequestedSize      decimal.Decimal     `json:"requested_size"`
	Allocations        []SplitAllocation   `json:"allocations"`
	AggregateAvgPrice  decimal.Decimal     `json:"aggregate_avg_price"`
	AggregateImpactBps decimal.Decimal     `json:"aggregate_impact_bps"`
	Warnings           []string            `json:"warnings,omitempty"`
	Plan               *SplitExecutionPlan `json:"plan"`
}

// ExecutionReceipt reports the outcome of one submitted leg.
type ExecutionReceipt struct {
	Success    bool            `json:"success"`
	FilledSize decimal.Decimal `json:"filled_size"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	OrderID    int64           `json:"order_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// LegReceipt pairs a plan leg with its execution outcome.
type LegReceipt struct {
	Market  PerpMarket       `json:"market"`
	Size    decimal.Decimal  `json:"size"`
	Receipt ExecutionReceipt `json:"receipt"`
}

// SplitExecutionReceipt is the outcome of a batched multi-leg submit.
type SplitExecutionReceipt struct {
	Success           bool               `json:"success"`
	Legs              []LegReceipt       `json:"legs"`
	CollateralReceipt *CollateralReceipt `json:"collateral_receipt,omitempty"`
	Error             string             `json:"error,omitempty"`
}
