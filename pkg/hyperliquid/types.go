package hyperliquid

import (
	"encoding/json"
	"fmt"
)

// Tif is the time-in-force for limit orders.
type Tif string

const (
	TifAlo Tif = "Alo"
	TifIoc Tif = "Ioc"
	TifGtc Tif = "Gtc"
)

// Tpsl tags a trigger order as take-profit or stop-loss.
type Tpsl string

const (
	TpslTp Tpsl = "tp"
	TpslSl Tpsl = "sl"
)

// LimitOrderType configures a limit order.
type LimitOrderType struct {
	Tif Tif `json:"tif"`
}

// TriggerOrderType configures a trigger order. TriggerPx is a decimal
// string on the wire.
type TriggerOrderType struct {
	TriggerPx string `json:"triggerPx"`
	IsMarket  bool   `json:"isMarket"`
	Tpsl      Tpsl   `json:"tpsl"`
}

// OrderType is the tagged order-type variant: exactly one of Limit or
// Trigger is set.
type OrderType struct {
	Limit   *LimitOrderType   `json:"limit,omitempty"`
	Trigger *TriggerOrderType `json:"trigger,omitempty"`
}

// OrderParams describes one order for placement. Prices and sizes are
// decimal strings, already rounded to venue precision by the caller.
type OrderParams struct {
	AssetIndex    int       `json:"asset_index"`
	IsBuy         bool      `json:"is_buy"`
	Price         string    `json:"price"`
	Size          string    `json:"size"`
	ReduceOnly    bool      `json:"reduce_only"`
	OrderType     OrderType `json:"order_type"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
}

// orderWire is the compact wire encoding of an order.
type orderWire struct {
	Asset      int           `json:"a"`
	IsBuy      bool          `json:"b"`
	LimitPx    string        `json:"p"`
	Sz         string        `json:"s"`
	ReduceOnly bool          `json:"r"`
	OrderType  orderTypeWire `json:"t"`
	Cloid      *string       `json:"c,omitempty"`
}

type orderTypeWire struct {
	Limit   *LimitOrderType   `json:"limit,omitempty"`
	Trigger *TriggerOrderType `json:"trigger,omitempty"`
}

// BuilderInfo is the per-order builder fee attribution. F is in tenths
// of a basis point.
type BuilderInfo struct {
	Address string `json:"b"`
	FeeRate int    `json:"f"`
}

// AssetInfo describes one perp asset in a universe.
type AssetInfo struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	IsDelisted   bool   `json:"isDelisted,omitempty"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`
}

// Meta is perp exchange metadata for one dex. CollateralToken is the
// spot token index the dex margins in; absent for the first-party dex.
type Meta struct {
	Universe        []AssetInfo `json:"universe"`
	CollateralToken *int        `json:"collateralToken,omitempty"`
}

// PerpAssetCtx is per-asset runtime context.
type PerpAssetCtx struct {
	DayNtlVlm    string  `json:"dayNtlVlm"`
	Funding      string  `json:"funding"`
	MarkPx       string  `json:"markPx"`
	MidPx        *string `json:"midPx,omitempty"`
	OpenInterest string  `json:"openInterest"`
	OraclePx     string  `json:"oraclePx"`
	Premium      string  `json:"premium,omitempty"`
	PrevDayPx    string  `json:"prevDayPx,omitempty"`
}

// MetaAndAssetCtxs pairs a dex's universe with its asset contexts. The
// wire format is a two-element array.
type MetaAndAssetCtxs struct {
	Meta      Meta
	AssetCtxs []PerpAssetCtx
}

// UnmarshalJSON decodes the [meta, assetCtxs] array form.
func (m *MetaAndAssetCtxs) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("metaAndAssetCtxs: expected 2 elements, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &m.Meta); err != nil {
		return err
	}
	return json.Unmarshal(arr[1], &m.AssetCtxs)
}

// MarshalJSON re-encodes the array form.
func (m MetaAndAssetCtxs) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{m.Meta, m.AssetCtxs})
}

// PerpDex is a deployer entry. The first entry of the perpDexs response
// is null for the first-party dex; it decodes to a nil pointer.
type PerpDex struct {
	Name          string  `json:"name"`
	FullName      *string `json:"fullName,omitempty"`
	Deployer      *string `json:"deployer,omitempty"`
	OracleUpdater *string `json:"oracleUpdater,omitempty"`
}

// SpotAssetInfo describes one spot trading pair.
type SpotAssetInfo struct {
	Name        string `json:"name"`
	Tokens      [2]int `json:"tokens"`
	Index       int    `json:"index"`
	IsCanonical bool   `json:"isCanonical"`
}

// SpotTokenInfo describes one spot token.
type SpotTokenInfo struct {
	Name        string `json:"name"`
	SzDecimals  int    `json:"szDecimals"`
	WeiDecimals int    `json:"weiDecimals"`
	Index       int    `json:"index"`
	TokenID     string `json:"tokenId"`
	IsCanonical bool   `json:"isCanonical"`
}

// SpotMeta is spot exchange metadata.
type SpotMeta struct {
	Universe []SpotAssetInfo `json:"universe"`
	Tokens   []SpotTokenInfo `json:"tokens"`
}

// L2Level is one book level: decimal-string price and size plus the
// resting order count.
type L2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// L2Book is an orderbook snapshot. Levels[0] is bids, Levels[1] asks.
type L2Book struct {
	Coin   string       `json:"coin"`
	Levels [2][]L2Level `json:"levels"`
	Time   int64        `json:"time"`
}

// Leverage is position leverage state.
type Leverage struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Position is a raw venue position. Szi is signed: negative is short.
type Position struct {
	Coin          string   `json:"coin"`
	EntryPx       *string  `json:"entryPx"`
	Leverage      Leverage `json:"leverage"`
	LiquidationPx *string  `json:"liquidationPx"`
	MarginUsed    string   `json:"marginUsed"`
	PositionValue string   `json:"positionValue"`
	Szi           string   `json:"szi"`
	UnrealizedPnl string   `json:"unrealizedPnl"`
}

// AssetPosition wraps a position with its margin type.
type AssetPosition struct {
	Position Position `json:"position"`
	Type     string   `json:"type"`
}

// MarginSummary is account-level margin state.
type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalMarginUsed"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
}

// UserState is the perp clearinghouse state for a user.
type UserState struct {
	AssetPositions     []AssetPosition `json:"assetPositions"`
	CrossMarginSummary MarginSummary   `json:"crossMarginSummary"`
	MarginSummary      MarginSummary   `json:"marginSummary"`
	Withdrawable       string          `json:"withdrawable"`
}

// SpotBalanceEntry is one spot clearinghouse balance.
type SpotBalanceEntry struct {
	Coin  string `json:"coin"`
	Token int    `json:"token"`
	Total string `json:"total"`
	Hold  string `json:"hold"`
}

// SpotUserState is the spot clearinghouse state for a user.
type SpotUserState struct {
	Balances []SpotBalanceEntry `json:"balances"`
}

// OpenOrder is one resting order.
type OpenOrder struct {
	Coin      string `json:"coin"`
	LimitPx   string `json:"limitPx"`
	Oid       int64  `json:"oid"`
	Side      string `json:"side"`
	Sz        string `json:"sz"`
	Timestamp int64  `json:"timestamp"`
}

// Fill is one trade fill.
type Fill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      int64  `json:"time"`
	Dir       string `json:"dir"`
	ClosedPnl string `json:"closedPnl"`
	Oid       int64  `json:"oid"`
	Fee       string `json:"fee"`
	FeeToken  string `json:"feeToken"`
}

// FundingRecord is one funding history entry.
type FundingRecord struct {
	Coin string `json:"coin"`
	Time int64  `json:"time"`
	Px   string `json:"premium,omitempty"`
	Rate string `json:"fundingRate"`
}

// RestingOrder reports an accepted, unfilled order.
type RestingOrder struct {
	Oid int64 `json:"oid"`
}

// FilledOrder reports a fill.
type FilledOrder struct {
	TotalSz string `json:"totalSz,omitempty"`
	AvgPx   string `json:"avgPx,omitempty"`
	Oid     int64  `json:"oid,omitempty"`
}

// OrderStatus is the tagged per-order outcome variant: exactly one of
// Resting, Filled, Error, WaitingForFill, or WaitingForTrigger is set.
type OrderStatus struct {
	Resting           *RestingOrder `json:"resting,omitempty"`
	Filled            *FilledOrder  `json:"filled,omitempty"`
	Error             string        `json:"error,omitempty"`
	WaitingForFill    bool          `json:"waitingForFill,omitempty"`
	WaitingForTrigger bool          `json:"waitingForTrigger,omitempty"`
}

// apiResponse is the venue's common response envelope.
type apiResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

func (r *apiResponse) decode(v interface{}) error {
	if r.Status != "ok" {
		var msg string
		if err := json.Unmarshal(r.Response, &msg); err != nil {
			return fmt.Errorf("venue error with undecodable payload: %s", string(r.Response))
		}
		return fmt.Errorf("%s", msg)
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(r.Response, v)
}

// orderResponseBody is the inner payload of an order placement response.
type orderResponseBody struct {
	Type string `json:"type"`
	Data struct {
		Statuses []OrderStatus `json:"statuses"`
	} `json:"data"`
}
