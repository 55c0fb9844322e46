package book

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

type fakeMarkets struct {
	markets map[string][]types.PerpMarket
}

func (f *fakeMarkets) Markets(baseAsset string) []types.PerpMarket {
	return f.markets[baseAsset]
}

type fakeBooks struct {
	books map[string]*hyperliquid.L2Book
	fail  map[string]bool
}

func (f *fakeBooks) L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error) {
	if f.fail[coin] {
		return nil, fmt.Errorf("timeout fetching %s", coin)
	}
	bk, ok := f.books[coin]
	if !ok {
		return nil, fmt.Errorf("no book for %s", coin)
	}
	return bk, nil
}

func wireBook(coin string, bids, asks [][2]string) *hyperliquid.L2Book {
	conv := func(levels [][2]string) []hyperliquid.L2Level {
		out := make([]hyperliquid.L2Level, len(levels))
		for i, lvl := range levels {
			out[i] = hyperliquid.L2Level{Px: lvl[0], Sz: lvl[1], N: 1}
		}
		return out
	}
	return &hyperliquid.L2Book{
		Coin:   coin,
		Levels: [2][]hyperliquid.L2Level{conv(bids), conv(asks)},
		Time:   1700000000000,
	}
}

func tslaSource() *fakeMarkets {
	return &fakeMarkets{markets: map[string][]types.PerpMarket{
		"TSLA": {
			{BaseAsset: "TSLA", Coin: "TSLA", IsNative: true, Collateral: "USDC"},
			{BaseAsset: "TSLA", Coin: "flex:TSLA1", DexName: "flex", Collateral: "USDH"},
		},
	}}
}

func TestAggregateMergesEqualPrices(t *testing.T) {
	books := &fakeBooks{books: map[string]*hyperliquid.L2Book{
		"TSLA":       wireBook("TSLA", [][2]string{{"431.00", "4"}}, [][2]string{{"431.50", "5"}, {"432.00", "2"}}),
		"flex:TSLA1": wireBook("flex:TSLA1", [][2]string{{"430.90", "1"}}, [][2]string{{"431.50", "3"}}),
	}}
	agg := New(tslaSource(), books)

	merged, err := agg.Aggregate(context.Background(), "TSLA")
	require.NoError(t, err)

	require.Len(t, merged.Asks, 2)
	top := merged.Asks[0]
	assert.True(t, top.Price.Equal(decimal.RequireFromString("431.50")))
	assert.True(t, top.TotalSize.Equal(decimal.RequireFromString("8")))
	require.Len(t, top.Sources, 2)
	// Source order follows market iteration order.
	assert.Equal(t, "TSLA", top.Sources[0].Coin)
	assert.Equal(t, "flex:TSLA1", top.Sources[1].Coin)

	assert.Len(t, merged.PerMarketBooks, 2)
	assert.Empty(t, merged.FailedCoins)
	assert.Equal(t, int64(1700000000000), merged.TimestampMs)
}

func TestAggregateSourceSumsMatchTotals(t *testing.T) {
	books := &fakeBooks{books: map[string]*hyperliquid.L2Book{
		"TSLA":       wireBook("TSLA", [][2]string{{"431.00", "4"}, {"430.50", "7"}}, [][2]string{{"431.50", "5"}}),
		"flex:TSLA1": wireBook("flex:TSLA1", [][2]string{{"431.00", "2.5"}}, [][2]string{{"431.50", "3"}, {"433.00", "9"}}),
	}}
	agg := New(tslaSource(), books)

	merged, err := agg.Aggregate(context.Background(), "TSLA")
	require.NoError(t, err)

	for _, side := range [][]types.AggregatedLevel{merged.Bids, merged.Asks} {
		for _, lvl := range side {
			sum := decimal.Zero
			for _, src := range lvl.Sources {
				sum = sum.Add(src.Size)
			}
			assert.True(t, sum.Equal(lvl.TotalSize),
				"level %s: sources sum %s != total %s", lvl.Price, sum, lvl.TotalSize)
		}
	}
}

func TestAggregateSortsBidsDescAsksAsc(t *testing.T) {
	books := &fakeBooks{books: map[string]*hyperliquid.L2Book{
		"TSLA":       wireBook("TSLA", [][2]string{{"431.00", "1"}, {"430.00", "1"}}, [][2]string{{"431.50", "1"}, {"432.50", "1"}}),
		"flex:TSLA1": wireBook("flex:TSLA1", [][2]string{{"430.50", "1"}}, [][2]string{{"432.00", "1"}}),
	}}
	agg := New(tslaSource(), books)

	merged, err := agg.Aggregate(context.Background(), "TSLA")
	require.NoError(t, err)

	for i := 1; i < len(merged.Bids); i++ {
		assert.True(t, merged.Bids[i].Price.LessThan(merged.Bids[i-1].Price))
	}
	for i := 1; i < len(merged.Asks); i++ {
		assert.True(t, merged.Asks[i].Price.GreaterThan(merged.Asks[i-1].Price))
	}
}

func TestAggregateRecordsFailedCoins(t *testing.T) {
	books := &fakeBooks{
		books: map[string]*hyperliquid.L2Book{
			"TSLA": wireBook("TSLA", nil, [][2]string{{"431.50", "5"}}),
		},
		fail: map[string]bool{"flex:TSLA1": true},
	}
	agg := New(tslaSource(), books)

	merged, err := agg.Aggregate(context.Background(), "TSLA")
	require.NoError(t, err)

	assert.Equal(t, []string{"flex:TSLA1"}, merged.FailedCoins)
	assert.Len(t, merged.PerMarketBooks, 1)
	_, present := merged.PerMarketBooks["flex:TSLA1"]
	assert.False(t, present)
}

func TestAggregateAllFailedReturnsEmptyBook(t *testing.T) {
	books := &fakeBooks{fail: map[string]bool{"TSLA": true, "flex:TSLA1": true}}
	agg := New(tslaSource(), books)

	merged, err := agg.Aggregate(context.Background(), "TSLA")
	require.NoError(t, err)

	assert.Empty(t, merged.Bids)
	assert.Empty(t, merged.Asks)
	assert.Empty(t, merged.PerMarketBooks)
	assert.Len(t, merged.FailedCoins, 2)
}

func TestAggregateUnknownAssetYieldsEmptyBook(t *testing.T) {
	agg := New(tslaSource(), &fakeBooks{})

	merged, err := agg.Aggregate(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Empty(t, merged.Bids)
	assert.Empty(t, merged.Asks)
	assert.Empty(t, merged.FailedCoins)
}

func TestAggregateForOrderTruncatesActiveSide(t *testing.T) {
	books := &fakeBooks{books: map[string]*hyperliquid.L2Book{
		"TSLA": wireBook("TSLA",
			[][2]string{{"431.00", "4"}},
			[][2]string{{"431.50", "5"}, {"432.00", "5"}, {"433.00", "5"}}),
		"flex:TSLA1": wireBook("flex:TSLA1", nil, [][2]string{{"434.00", "5"}}),
	}}
	agg := New(tslaSource(), books)

	merged, err := agg.AggregateForOrder(context.Background(), "TSLA", types.SideBuy,
		decimal.RequireFromString("8"))
	require.NoError(t, err)

	// 5 + 5 covers the order; deeper ask levels are dropped.
	require.Len(t, merged.Asks, 2)
	assert.True(t, merged.Asks[1].Price.Equal(decimal.RequireFromString("432.00")))
	// The passive side is untouched.
	assert.Len(t, merged.Bids, 1)
}

func TestAggregateForOrderKeepsAllWhenDepthShort(t *testing.T) {
	books := &fakeBooks{books: map[string]*hyperliquid.L2Book{
		"TSLA":       wireBook("TSLA", nil, [][2]string{{"431.50", "2"}}),
		"flex:TSLA1": wireBook("flex:TSLA1", nil, [][2]string{{"432.00", "2"}}),
	}}
	agg := New(tslaSource(), books)

	merged, err := agg.AggregateForOrder(context.Background(), "TSLA", types.SideBuy,
		decimal.RequireFromString("50"))
	require.NoError(t, err)
	assert.Len(t, merged.Asks, 2)
}

func TestParseBookRoundTripsDecimalStrings(t *testing.T) {
	raw := wireBook("TSLA", [][2]string{{"431.05", "2.5"}}, [][2]string{{"431.5", "5"}})

	parsed := ParseBook(raw)

	// Parsing then re-serializing a canonical decimal string yields the
	// same bytes, so price-string merge keys are stable.
	assert.Equal(t, "431.05", parsed.Bids[0].Price.String())
	assert.Equal(t, "2.5", parsed.Bids[0].Size.String())
	assert.Equal(t, "431.5", parsed.Asks[0].Price.String())
}

func TestParseBookDropsMalformedLevels(t *testing.T) {
	raw := &hyperliquid.L2Book{
		Coin: "TSLA",
		Levels: [2][]hyperliquid.L2Level{
			{{Px: "not-a-number", Sz: "1", N: 1}, {Px: "431.00", Sz: "2", N: 1}},
			{{Px: "431.50", Sz: "junk", N: 1}},
		},
	}

	parsed := ParseBook(raw)
	require.Len(t, parsed.Bids, 1)
	assert.Empty(t, parsed.Asks)
}
