package router

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

func simWithImpact(impact string) *types.SimulationResult {
	return &types.SimulationResult{
		PriceImpactBps: decimal.RequireFromString(impact),
	}
}

func TestScoreMarketMatchingCollateral(t *testing.T) {
	market := types.PerpMarket{
		Coin:       "TSLA",
		Collateral: "USDC",
		Funding:    decimal.RequireFromString("0.00000625"),
	}
	sim := simWithImpact("5.797")
	userCollateral := map[string]bool{"USDC": true}

	score := ScoreMarket(sim, market, types.SideBuy, userCollateral, nil)

	assert.True(t, score.CollateralMatch)
	assert.Empty(t, score.Reason)
	// 5.797 - (-0.00000625 * 30000) + 0
	assertDecimalNear(t, "5.9845", score.TotalScore, "0.001")
}

func TestScoreMarketFundingHelpsSells(t *testing.T) {
	market := types.PerpMarket{
		Coin:       "TSLA",
		Collateral: "USDC",
		Funding:    decimal.RequireFromString("0.0001"),
	}
	sim := simWithImpact("10")
	userCollateral := map[string]bool{"USDC": true}

	buy := ScoreMarket(sim, market, types.SideBuy, userCollateral, nil)
	sell := ScoreMarket(sim, market, types.SideSell, userCollateral, nil)

	// Positive funding pays shorts, so the sell score is lower.
	assert.True(t, sell.TotalScore.LessThan(buy.TotalScore))
	assertDecimalNear(t, "13", buy.TotalScore, "0.0001")
	assertDecimalNear(t, "7", sell.TotalScore, "0.0001")
}

func TestScoreMarketDefaultMismatchPenalty(t *testing.T) {
	market := types.PerpMarket{Coin: "USDH:TSLA", Collateral: "USDH"}
	sim := simWithImpact("2")

	score := ScoreMarket(sim, market, types.SideBuy, map[string]bool{"USDC": true}, nil)

	assert.False(t, score.CollateralMatch)
	assert.True(t, score.SwapCostBps.Equal(DefaultSwapCostBps))
	assert.Contains(t, score.Reason, "USDH")
	assert.Contains(t, score.Reason, "50")
	assert.True(t, score.TotalScore.Equal(decimal.RequireFromString("52")))
}

func TestScoreMarketMeasuredSwapCostOverridesDefault(t *testing.T) {
	market := types.PerpMarket{Coin: "USDH:TSLA", Collateral: "USDH"}
	sim := simWithImpact("2")
	measured := decimal.RequireFromString("5")

	score := ScoreMarket(sim, market, types.SideBuy, map[string]bool{"USDC": true}, &measured)

	assert.False(t, score.CollateralMatch)
	assert.True(t, score.SwapCostBps.Equal(measured))
	assert.True(t, score.TotalScore.Equal(decimal.RequireFromString("7")))
}

func TestScoreMarketMonotonicity(t *testing.T) {
	market := types.PerpMarket{Coin: "TSLA", Collateral: "USDC"}
	userCollateral := map[string]bool{"USDC": true}

	lowImpact := ScoreMarket(simWithImpact("1"), market, types.SideBuy, userCollateral, nil)
	highImpact := ScoreMarket(simWithImpact("9"), market, types.SideBuy, userCollateral, nil)
	assert.True(t, lowImpact.TotalScore.LessThan(highImpact.TotalScore))

	goodFunding := market
	goodFunding.Funding = decimal.RequireFromString("-0.0001")
	badFunding := market
	badFunding.Funding = decimal.RequireFromString("0.0001")
	favorable := ScoreMarket(simWithImpact("5"), goodFunding, types.SideBuy, userCollateral, nil)
	unfavorable := ScoreMarket(simWithImpact("5"), badFunding, types.SideBuy, userCollateral, nil)
	assert.True(t, favorable.TotalScore.LessThan(unfavorable.TotalScore))

	mismatched := types.PerpMarket{Coin: "USDH:TSLA", Collateral: "USDH"}
	small := decimal.RequireFromString("3")
	large := decimal.RequireFromString("30")
	cheap := ScoreMarket(simWithImpact("5"), mismatched, types.SideBuy, userCollateral, &small)
	costly := ScoreMarket(simWithImpact("5"), mismatched, types.SideBuy, userCollateral, &large)
	assert.True(t, cheap.TotalScore.LessThan(costly.TotalScore))
}
