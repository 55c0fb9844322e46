package types

import (
	"github.com/shopspring/decimal"
)

// CollateralRequirement quantifies one token's funding gap for a plan.
// Shortfall is zero for the account-native collateral regardless of the
// spot balance: abstraction mode draws it from the perp balance.
type CollateralRequirement struct {
	Token                string          `json:"token"`
	AmountNeeded         decimal.Decimal `json:"amount_needed"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
	Shortfall            decimal.Decimal `json:"shortfall"`
	SwapFrom             string          `json:"swap_from,omitempty"`
	EstimatedSwapCostBps decimal.Decimal `json:"estimated_swap_cost_bps"`
}

// CollateralPlan summarizes pre-trade collateral preparation.
type CollateralPlan struct {
	Requirements       []CollateralRequirement `json:"requirements"`
	TotalSwapCostBps   decimal.Decimal         `json:"total_swap_cost_bps"`
	SwapsNeeded        bool                    `json:"swaps_needed"`
	AbstractionEnabled bool                    `json:"abstraction_enabled"`
}

// ExecutedSwap records one completed collateral swap.
type ExecutedSwap struct {
	Token      string          `json:"token"`
	UsdcSpent  decimal.Decimal `json:"usdc_spent"`
	FilledSize decimal.Decimal `json:"filled_size"`
	OrderID    int64           `json:"order_id,omitempty"`
}

// CollateralReceipt is the outcome of running a collateral plan.
// SwapsExecuted is accurate up to the point of failure.
type CollateralReceipt struct {
	Success               bool           `json:"success"`
	SwapsExecuted         []ExecutedSwap `json:"swaps_executed"`
	AbstractionWasEnabled bool           `json:"abstraction_was_enabled"`
	Error                 string         `json:"error,omitempty"`
}

// SpotBalance is a normalized spot holding.
type SpotBalance struct {
	Token string          `json:"token"`
	Total decimal.Decimal `json:"total"`
	Hold  decimal.Decimal `json:"hold"`
}

// Balances is the combined account view used by the facade.
type Balances struct {
	PerpAccountValue decimal.Decimal `json:"perp_account_value"`
	PerpMarginUsed   decimal.Decimal `json:"perp_margin_used"`
	Withdrawable     decimal.Decimal `json:"withdrawable"`
	Spot             []SpotBalance   `json:"spot"`
}
