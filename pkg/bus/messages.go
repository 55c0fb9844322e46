package bus

import "time"

// QuoteEvent is published for every quote the broker produces.
type QuoteEvent struct {
	BaseAsset string      `json:"base_asset"`
	Quote     interface{} `json:"quote"`
	Timestamp time.Time   `json:"timestamp"`
}

// ExecutionEvent is published for every execution attempt, successful
// or not.
type ExecutionEvent struct {
	BaseAsset string      `json:"base_asset"`
	Receipt   interface{} `json:"receipt"`
	Timestamp time.Time   `json:"timestamp"`
}

// SwapEvent is published for every executed collateral swap.
type SwapEvent struct {
	Token     string      `json:"token"`
	Swap      interface{} `json:"swap"`
	Timestamp time.Time   `json:"timestamp"`
}
