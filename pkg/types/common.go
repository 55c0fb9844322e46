package types

import (
	"github.com/shopspring/decimal"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Type aliases for compatibility
type Side = string

// DexNative is the deployer label for first-party markets.
const DexNative = "__native__"

// Asset index encoding constants. Native markets use their local index
// unchanged; builder-deployed markets are offset into a reserved range.
const (
	DeployerAssetBase   = 100000
	DeployerAssetStride = 10000
	SpotAssetBase       = 10000
)

// NativeCollateral is the account-native margin token. Markets that
// settle in it draw margin from the perp balance when abstraction mode
// is enabled, so it never produces a spot shortfall.
const NativeCollateral = "USDC"

// PerpAssetIndex computes the global asset index for a perp market.
// Native markets keep their local index; deployer d >= 1 maps local
// index i to DeployerAssetBase + d*DeployerAssetStride + i. The encoding
// is a wire contract and must not change.
func PerpAssetIndex(deployerIndex, localIndex int) int {
	if deployerIndex == 0 {
		return localIndex
	}
	return DeployerAssetBase + deployerIndex*DeployerAssetStride + localIndex
}

// SpotAssetIndex computes the wire asset index for a spot pair.
func SpotAssetIndex(pairIndex int) int {
	return SpotAssetBase + 2*pairIndex
}

// PerpMarket is a single tradable venue for a base asset.
type PerpMarket struct {
	BaseAsset    string          `json:"base_asset"`
	Coin         string          `json:"coin"`
	AssetIndex   int             `json:"asset_index"`
	DexName      string          `json:"dex_name"`
	Collateral   string          `json:"collateral"`
	IsNative     bool            `json:"is_native"`
	Funding      decimal.Decimal `json:"funding"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	MarkPrice    decimal.Decimal `json:"mark_price"`
	OraclePrice  string          `json:"oracle_price,omitempty"`
	MaxLeverage  int             `json:"max_leverage,omitempty"`
	SzDecimals   int             `json:"sz_decimals,omitempty"`
}

// MarketGroup collects every market trading the same base asset.
type MarketGroup struct {
	BaseAsset       string       `json:"base_asset"`
	Markets         []PerpMarket `json:"markets"`
	HasAlternatives bool         `json:"has_alternatives"`
}

// LevelSource records one market's contribution to an aggregated level.
type LevelSource struct {
	Coin string          `json:"coin"`
	Size decimal.Decimal `json:"size"`
}

// AggregatedLevel is a merged price level. The sum of source sizes
// always equals TotalSize.
type AggregatedLevel struct {
	Price     decimal.Decimal `json:"price"`
	TotalSize decimal.Decimal `json:"total_size"`
	Sources   []LevelSource   `json:"sources"`
}

// BookLevel is a single price level of one market's book.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// MarketBook is one market's orderbook snapshot, decimal-parsed.
type MarketBook struct {
	Coin        string      `json:"coin"`
	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	TimestampMs int64       `json:"timestamp_ms"`
}

// BestBid returns the top bid price, or zero when the side is empty.
func (b *MarketBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or zero when the side is empty.
func (b *MarketBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// AggregatedBook merges every responding market's book for one asset.
// Bids are sorted descending, asks ascending. PerMarketBooks holds the
// raw per-venue snapshots that contributed to the merge.
type AggregatedBook struct {
	BaseAsset      string                 `json:"base_asset"`
	Bids           []AggregatedLevel      `json:"bids"`
	Asks           []AggregatedLevel      `json:"asks"`
	PerMarketBooks map[string]*MarketBook `json:"per_market_books"`
	FailedCoins    []string               `json:"failed_coins,omitempty"`
	TimestampMs    int64                  `json:"timestamp_ms"`
}

// BestBid returns the best aggregated bid price, or zero.
func (a *AggregatedBook) BestBid() decimal.Decimal {
	if len(a.Bids) == 0 {
		return decimal.Zero
	}
	return a.Bids[0].Price
}

// BestAsk returns the best aggregated ask price, or zero.
func (a *AggregatedBook) BestAsk() decimal.Decimal {
	if len(a.Asks) == 0 {
		return decimal.Zero
	}
	return a.Asks[0].Price
}

// MidPrice returns the aggregated mid, the single-sided best when only
// one side has depth, or zero for an empty book.
func (a *AggregatedBook) MidPrice() decimal.Decimal {
	bid, ask := a.BestBid(), a.BestAsk()
	switch {
	case !bid.IsZero() && !ask.IsZero():
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	case !bid.IsZero():
		return bid
	default:
		return ask
	}
}
