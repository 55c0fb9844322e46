package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperbroker/hyperbroker/internal/config"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// fakeVenue is a minimal in-memory venue: one native TSLA market plus
// one USDH-margined deployer market.
type fakeVenue struct {
	canTrade      bool
	spotMetaReads int
	placed        []hyperliquid.OrderParams
	batched       [][]hyperliquid.OrderParams
}

func (f *fakeVenue) Meta(ctx context.Context, dex string) (*hyperliquid.Meta, error) {
	return nil, fmt.Errorf("unused")
}

func (f *fakeVenue) MetaAndAssetCtxs(ctx context.Context, dex string) (*hyperliquid.MetaAndAssetCtxs, error) {
	ctx5 := hyperliquid.PerpAssetCtx{Funding: "0.00000625", MarkPx: "431.25", OpenInterest: "5000", OraclePx: "431.20"}
	switch dex {
	case "":
		return &hyperliquid.MetaAndAssetCtxs{
			Meta:      hyperliquid.Meta{Universe: []hyperliquid.AssetInfo{{Name: "TSLA", SzDecimals: 2, MaxLeverage: 10}}},
			AssetCtxs: []hyperliquid.PerpAssetCtx{ctx5},
		}, nil
	case "flex":
		tok := 5
		return &hyperliquid.MetaAndAssetCtxs{
			Meta: hyperliquid.Meta{
				Universe:        []hyperliquid.AssetInfo{{Name: "flex:TSLA1", SzDecimals: 2, MaxLeverage: 10}},
				CollateralToken: &tok,
			},
			AssetCtxs: []hyperliquid.PerpAssetCtx{ctx5},
		}, nil
	}
	return nil, fmt.Errorf("unknown dex %q", dex)
}

func (f *fakeVenue) PerpDexs(ctx context.Context) ([]*hyperliquid.PerpDex, error) {
	return []*hyperliquid.PerpDex{nil, {Name: "flex"}}, nil
}

func (f *fakeVenue) SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error) {
	f.spotMetaReads++
	return &hyperliquid.SpotMeta{
		Tokens: []hyperliquid.SpotTokenInfo{
			{Name: "USDC", Index: 0},
			{Name: "USDH", Index: 5},
		},
		Universe: []hyperliquid.SpotAssetInfo{
			{Name: "USDH/USDC", Tokens: [2]int{5, 0}, Index: 11},
		},
	}, nil
}

func (f *fakeVenue) L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error) {
	books := map[string]*hyperliquid.L2Book{
		"TSLA": {Coin: "TSLA", Levels: [2][]hyperliquid.L2Level{
			{{Px: "431.00", Sz: "10", N: 1}},
			{{Px: "431.50", Sz: "10", N: 1}},
		}},
		"flex:TSLA1": {Coin: "flex:TSLA1", Levels: [2][]hyperliquid.L2Level{
			{{Px: "431.00", Sz: "10", N: 1}},
			{{Px: "432.50", Sz: "10", N: 1}},
		}},
		"USDH/USDC": {Coin: "USDH/USDC", Levels: [2][]hyperliquid.L2Level{
			{{Px: "0.999", Sz: "100000", N: 1}},
			{{Px: "1.001", Sz: "100000", N: 1}},
		}},
	}
	bk, ok := books[coin]
	if !ok {
		return nil, fmt.Errorf("no book for %s", coin)
	}
	return bk, nil
}

func (f *fakeVenue) ClearinghouseState(ctx context.Context, user string) (*hyperliquid.UserState, error) {
	return &hyperliquid.UserState{
		MarginSummary: hyperliquid.MarginSummary{AccountValue: "10000", TotalMarginUsed: "2500"},
		Withdrawable:  "7500",
	}, nil
}

func (f *fakeVenue) SpotClearinghouseState(ctx context.Context, user string) (*hyperliquid.SpotUserState, error) {
	return &hyperliquid.SpotUserState{Balances: []hyperliquid.SpotBalanceEntry{
		{Coin: "USDH", Token: 5, Total: "1200", Hold: "0"},
		{Coin: "DUST", Token: 8, Total: "0", Hold: "0"},
	}}, nil
}

func (f *fakeVenue) FundingHistory(ctx context.Context, coin string, startMs, endMs int64) ([]hyperliquid.FundingRecord, error) {
	return []hyperliquid.FundingRecord{{Coin: coin, Rate: "0.00000625", Time: startMs}}, nil
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, params hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) (*hyperliquid.OrderStatus, error) {
	f.placed = append(f.placed, params)
	return &hyperliquid.OrderStatus{
		Filled: &hyperliquid.FilledOrder{TotalSz: params.Size, AvgPx: params.Price, Oid: 42},
	}, nil
}

func (f *fakeVenue) BatchOrders(ctx context.Context, params []hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) ([]hyperliquid.OrderStatus, error) {
	f.batched = append(f.batched, params)
	out := make([]hyperliquid.OrderStatus, len(params))
	for i, p := range params {
		out[i] = hyperliquid.OrderStatus{Filled: &hyperliquid.FilledOrder{TotalSz: p.Size, AvgPx: p.Price, Oid: int64(i)}}
	}
	return out, nil
}

func (f *fakeVenue) MaxBuilderFee(ctx context.Context, user, builder string) (int, error) {
	return 0, nil
}

func (f *fakeVenue) ApproveBuilderFee(ctx context.Context, maxFeeRate, builder string) error {
	return nil
}

func (f *fakeVenue) UsdClassTransfer(ctx context.Context, amount string, toPerp bool) error {
	return nil
}

func (f *fakeVenue) SetDexAbstraction(ctx context.Context, enabled bool) error {
	return nil
}

func (f *fakeVenue) CanTrade() bool { return f.canTrade }
func (f *fakeVenue) WalletAddress() string {
	if f.canTrade {
		return "0xuser"
	}
	return ""
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultSlippage: decimal.RequireFromString("0.01"),
		LogLevel:        "silent",
	}
}

func newTestBroker(t *testing.T, venue Venue) *Broker {
	t.Helper()
	b, err := New(testConfig(), WithVenue(venue))
	require.NoError(t, err)
	return b
}

func TestAPIBeforeConnectFails(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{})

	_, err := b.Markets("TSLA")
	assert.ErrorIs(t, err, types.ErrNotConnected)

	_, err = b.Quote(context.Background(), "TSLA", types.SideBuy, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, types.ErrNotConnected)
}

func TestTradingWithoutWalletFails(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{canTrade: false})
	require.NoError(t, b.Connect(context.Background()))

	quote, err := b.Quote(context.Background(), "TSLA", types.SideBuy, decimal.RequireFromString("1"))
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), quote)
	assert.ErrorIs(t, err, types.ErrNoWallet)

	_, _, err = b.Long(context.Background(), "TSLA", decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, types.ErrNoWallet)
}

func TestConnectDiscoversMarkets(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{})
	require.NoError(t, b.Connect(context.Background()))

	markets, err := b.Markets("TSLA")
	require.NoError(t, err)
	require.Len(t, markets, 2)

	groups, err := b.AllGroups()
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.True(t, groups[0].HasAlternatives)
}

func TestUserCollateralIncludesHeldTokens(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{canTrade: true})
	require.NoError(t, b.Connect(context.Background()))

	held := b.userCollateral(context.Background())
	assert.True(t, held["USDC"])
	assert.True(t, held["USDH"])
	// Zero balances do not count as held collateral.
	assert.False(t, held["DUST"])
}

func TestQuoteAndExecuteFlow(t *testing.T) {
	venue := &fakeVenue{canTrade: true}
	b := newTestBroker(t, venue)
	require.NoError(t, b.Connect(context.Background()))

	quote, receipt, err := b.Long(context.Background(), "TSLA", decimal.RequireFromString("3"))
	require.NoError(t, err)
	assert.Equal(t, "TSLA", quote.SelectedMarket.Coin)
	require.True(t, receipt.Success)
	assert.True(t, receipt.FilledSize.Equal(decimal.RequireFromString("3")))
	require.Len(t, venue.placed, 1)
}

func TestExecuteSplitSubmitsBatch(t *testing.T) {
	venue := &fakeVenue{canTrade: true}
	b := newTestBroker(t, venue)
	require.NoError(t, b.Connect(context.Background()))

	quote, err := b.QuoteSplit(context.Background(), "TSLA", types.SideBuy, decimal.RequireFromString("15"))
	require.NoError(t, err)
	require.Len(t, quote.Allocations, 2)

	receipt, err := b.ExecuteSplit(context.Background(), quote)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	require.Len(t, venue.batched, 1)
	assert.Len(t, venue.batched[0], 2)
}

func TestBalances(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{canTrade: true})
	require.NoError(t, b.Connect(context.Background()))

	balances, err := b.Balances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances.PerpAccountValue.Equal(decimal.RequireFromString("10000")))
	assert.True(t, balances.Withdrawable.Equal(decimal.RequireFromString("7500")))
	require.Len(t, balances.Spot, 2)
	assert.Equal(t, "USDH", balances.Spot[0].Token)
}

func TestFunding(t *testing.T) {
	b := newTestBroker(t, &fakeVenue{})
	require.NoError(t, b.Connect(context.Background()))

	infos, err := b.Funding(context.Background(), "TSLA")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Len(t, info.History, 1)
	}
}

func TestSpotMetaServedFromCache(t *testing.T) {
	venue := &fakeVenue{canTrade: true}
	b := newTestBroker(t, venue)
	require.NoError(t, b.Connect(context.Background()))
	after := venue.spotMetaReads

	// Split execution estimates collateral, which reads spot metadata
	// repeatedly; the cache keeps it to the initial fetch.
	quote, err := b.QuoteSplit(context.Background(), "TSLA", types.SideBuy, decimal.RequireFromString("15"))
	require.NoError(t, err)
	_, err = b.ExecuteSplit(context.Background(), quote)
	require.NoError(t, err)

	assert.Equal(t, after, venue.spotMetaReads)
}
