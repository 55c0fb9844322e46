package router

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// DefaultSwapCostBps is the conservative penalty applied when the
// user lacks a market's collateral and no measured swap cost is
// available.
var DefaultSwapCostBps = decimal.NewFromInt(50)

// fundingScale converts a per-period funding rate into a
// cost-comparable basis-point figure: rate * 10000 * 3.
var fundingScale = decimal.NewFromInt(30000)

// ScoreMarket combines simulated impact, funding direction, and the
// collateral-swap penalty into one scalar. Lower is better. Passing a
// non-nil swapCostBps overrides the default mismatch penalty with a
// measured cost.
func ScoreMarket(sim *types.SimulationResult, market types.PerpMarket, side types.Side,
	userCollateral map[string]bool, swapCostBps *decimal.Decimal) types.MarketScore {

	score := types.MarketScore{
		Market:      market,
		PriceImpact: sim.PriceImpactBps,
		FundingRate: market.Funding,
		Simulation:  sim,
	}

	// Positive funding pays shorts; a buy wants negative funding.
	fundingBenefit := market.Funding.Neg()
	if side == types.SideSell {
		fundingBenefit = market.Funding
	}
	fundingScore := fundingBenefit.Mul(fundingScale)

	penalty := decimal.Zero
	if userCollateral[market.Collateral] {
		score.CollateralMatch = true
	} else {
		penalty = DefaultSwapCostBps
		if swapCostBps != nil {
			penalty = *swapCostBps
		}
		score.SwapCostBps = penalty
		score.Reason = fmt.Sprintf("requires %s collateral (+%s bps swap cost)",
			market.Collateral, penalty.String())
	}

	score.TotalScore = sim.PriceImpactBps.Sub(fundingScore).Add(penalty)
	return score
}
