package router

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

func level(price, size string) types.BookLevel {
	return types.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func assertDecimalNear(t *testing.T, expected string, actual decimal.Decimal, tolerance string) {
	t.Helper()
	exp := decimal.RequireFromString(expected)
	tol := decimal.RequireFromString(tolerance)
	assert.True(t, actual.Sub(exp).Abs().LessThanOrEqual(tol),
		"expected %s within %s, got %s", expected, tolerance, actual.String())
}

func TestSimulateFillSingleLevelBuy(t *testing.T) {
	book := &types.MarketBook{
		Coin: "TSLA",
		Bids: []types.BookLevel{level("431.00", "10")},
		Asks: []types.BookLevel{level("431.50", "5"), level("432.00", "10")},
	}

	sim, err := SimulateFill(book, types.SideBuy, decimal.RequireFromString("3"))
	require.NoError(t, err)

	assert.True(t, sim.AvgPrice.Equal(decimal.RequireFromString("431.50")))
	assert.True(t, sim.MidPrice.Equal(decimal.RequireFromString("431.25")))
	assert.True(t, sim.FilledSize.Equal(decimal.RequireFromString("3")))
	assert.True(t, sim.TotalCost.Equal(decimal.RequireFromString("1294.50")))
	assertDecimalNear(t, "5.797", sim.PriceImpactBps, "0.001")
}

func TestSimulateFillWalksMultipleLevels(t *testing.T) {
	book := &types.MarketBook{
		Coin: "TSLA",
		Asks: []types.BookLevel{level("431.50", "5"), level("432.00", "10")},
	}

	sim, err := SimulateFill(book, types.SideBuy, decimal.RequireFromString("8"))
	require.NoError(t, err)

	// 5 @ 431.50 + 3 @ 432.00
	assert.True(t, sim.TotalCost.Equal(decimal.RequireFromString("3453.50")))
	assert.True(t, sim.AvgPrice.Equal(decimal.RequireFromString("431.6875")))

	// The average lies between the best and the worst consumed level.
	assert.True(t, sim.AvgPrice.GreaterThanOrEqual(decimal.RequireFromString("431.50")))
	assert.True(t, sim.AvgPrice.LessThanOrEqual(decimal.RequireFromString("432.00")))
}

func TestSimulateFillSellWalksBids(t *testing.T) {
	book := &types.MarketBook{
		Coin: "ETH",
		Bids: []types.BookLevel{level("3000", "2"), level("2999", "2")},
		Asks: []types.BookLevel{level("3001", "2")},
	}

	sim, err := SimulateFill(book, types.SideSell, decimal.RequireFromString("3"))
	require.NoError(t, err)

	// 2 @ 3000 + 1 @ 2999
	assert.True(t, sim.AvgPrice.Equal(decimal.RequireFromString("2999.6666666666666667")))
	assert.True(t, sim.MidPrice.Equal(decimal.RequireFromString("3000.5")))
}

func TestSimulateFillInsufficientDepth(t *testing.T) {
	book := &types.MarketBook{
		Coin: "TSLA",
		Asks: []types.BookLevel{level("431.50", "5")},
	}

	_, err := SimulateFill(book, types.SideBuy, decimal.RequireFromString("6"))
	var depthErr *types.InsufficientDepthError
	require.ErrorAs(t, err, &depthErr)
	assert.True(t, depthErr.RequestedSize.Equal(decimal.RequireFromString("6")))
	assert.True(t, depthErr.AvailableSize.Equal(decimal.RequireFromString("5")))
}

func TestSimulateFillEmptyBook(t *testing.T) {
	book := &types.MarketBook{Coin: "TSLA"}

	_, err := SimulateFill(book, types.SideBuy, decimal.RequireFromString("1"))
	var depthErr *types.InsufficientDepthError
	require.ErrorAs(t, err, &depthErr)
}

func TestSimulateFillSingleSidedMid(t *testing.T) {
	book := &types.MarketBook{
		Coin: "TSLA",
		Asks: []types.BookLevel{level("100", "10")},
	}

	sim, err := SimulateFill(book, types.SideBuy, decimal.RequireFromString("1"))
	require.NoError(t, err)
	// Only the ask side exists, so its best is the mid and impact is zero.
	assert.True(t, sim.MidPrice.Equal(decimal.RequireFromString("100")))
	assert.True(t, sim.PriceImpactBps.IsZero())
}

func TestSimulateFillDeterministic(t *testing.T) {
	book := &types.MarketBook{
		Coin: "TSLA",
		Bids: []types.BookLevel{level("431.00", "7")},
		Asks: []types.BookLevel{level("431.50", "5"), level("432.00", "10"), level("433.15", "2.5")},
	}
	size := decimal.RequireFromString("12.5")

	first, err := SimulateFill(book, types.SideBuy, size)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := SimulateFill(book, types.SideBuy, size)
		require.NoError(t, err)
		assert.Equal(t, first.AvgPrice.String(), again.AvgPrice.String())
		assert.Equal(t, first.PriceImpactBps.String(), again.PriceImpactBps.String())
		assert.Equal(t, first.TotalCost.String(), again.TotalCost.String())
	}
}
