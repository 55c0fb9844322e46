package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/internal/book"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// limitPricePrecision is the rounding applied to plan limit prices.
// Tick-size alignment is left to the venue.
const limitPricePrecision = 6

// MarketSource resolves markets for a base asset.
type MarketSource interface {
	Markets(baseAsset string) []types.PerpMarket
}

// BookFetcher fetches one market's orderbook snapshot.
type BookFetcher interface {
	L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error)
}

// SwapCostEstimator measures the cost of acquiring a collateral token,
// in basis points. Nil estimators fall back to the default penalty.
type SwapCostEstimator interface {
	EstimateSwapCost(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Router turns order intents into reviewable execution plans. It holds
// only transient per-call snapshots.
type Router struct {
	markets    MarketSource
	venue      BookFetcher
	aggregator *book.Aggregator
	swapCosts  SwapCostEstimator
	optimizer  *SplitOptimizer
	logger     *logrus.Entry
	timeout    time.Duration
}

// New creates a router. swapCosts may be nil; scoring then uses the
// conservative default penalty for collateral mismatches.
func New(markets MarketSource, venue BookFetcher, aggregator *book.Aggregator, swapCosts SwapCostEstimator) *Router {
	return &Router{
		markets:    markets,
		venue:      venue,
		aggregator: aggregator,
		swapCosts:  swapCosts,
		optimizer:  NewSplitOptimizer(),
		logger:     logrus.WithField("component", "router"),
		timeout:    book.FetchTimeout,
	}
}

// Quote routes an order to the single best market. Every market's book
// is fetched concurrently, simulated, and scored; the lowest score
// wins. Markets whose book fetch fails degrade to a warning.
func (r *Router) Quote(ctx context.Context, baseAsset string, side types.Side,
	size decimal.Decimal, userCollateral map[string]bool, slippage decimal.Decimal) (*types.Quote, error) {

	markets := r.markets.Markets(baseAsset)
	if len(markets) == 0 {
		return nil, &types.NoMarketsError{BaseAsset: baseAsset}
	}

	books := r.fetchBooks(ctx, markets)

	var (
		scores      []types.MarketScore
		failedCoins []string
		responded   int
	)
	for i, market := range markets {
		bk := books[i]
		if bk == nil {
			failedCoins = append(failedCoins, market.Coin)
			continue
		}
		responded++

		sim, err := SimulateFill(bk, side, size)
		if err != nil {
			r.logger.WithField("coin", market.Coin).Debug("market cannot cover size")
			continue
		}

		var swapCost *decimal.Decimal
		if !userCollateral[market.Collateral] && r.swapCosts != nil {
			notional := sim.TotalCost
			if cost, err := r.swapCosts.EstimateSwapCost(ctx, types.NativeCollateral, market.Collateral, notional); err == nil {
				swapCost = &cost
			}
		}
		scores = append(scores, ScoreMarket(sim, market, side, userCollateral, swapCost))
	}

	if responded == 0 {
		return nil, &types.MarketDataUnavailableError{BaseAsset: baseAsset, FailedCoins: failedCoins}
	}
	if len(scores) == 0 {
		return nil, &types.InsufficientLiquidityError{BaseAsset: baseAsset, RequestedSize: size}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore.LessThan(scores[j].TotalScore)
	})
	best := scores[0]

	quote := &types.Quote{
		BaseAsset:               baseAsset,
		Side:                    side,
		RequestedSize:           size,
		SelectedMarket:          best.Market,
		EstimatedAvgPrice:       best.Simulation.AvgPrice,
		EstimatedPriceImpactBps: best.Simulation.PriceImpactBps,
		EstimatedFundingRate:    best.Market.Funding,
		AlternativesConsidered:  scores,
		Plan:                    buildLeg(best.Market, side, size, best.Simulation.AvgPrice, slippage),
	}
	if len(failedCoins) > 0 {
		quote.Warnings = append(quote.Warnings, partialDataWarning(responded, len(markets)))
	}
	return quote, nil
}

// QuoteSplit routes an order across every market with usable depth.
// The returned plan carries a pending collateral plan: requirements
// are recomputed at execution time against live balances, because
// balances observed at quote time may be stale by execution.
func (r *Router) QuoteSplit(ctx context.Context, baseAsset string, side types.Side,
	size decimal.Decimal, userCollateral map[string]bool, slippage decimal.Decimal) (*types.SplitQuote, error) {

	markets := r.markets.Markets(baseAsset)
	if len(markets) == 0 {
		return nil, &types.NoMarketsError{BaseAsset: baseAsset}
	}
	marketsByCoin := make(map[string]types.PerpMarket, len(markets))
	for _, m := range markets {
		marketsByCoin[m.Coin] = m
	}

	merged, err := r.aggregator.AggregateForOrder(ctx, baseAsset, side, size)
	if err != nil {
		return nil, err
	}
	if len(merged.PerMarketBooks) == 0 {
		return nil, &types.MarketDataUnavailableError{BaseAsset: baseAsset, FailedCoins: merged.FailedCoins}
	}

	result, err := r.optimizer.Optimize(merged, side, size, marketsByCoin)
	if err != nil {
		return nil, err
	}

	legs := make([]types.ExecutionPlan, 0, len(result.Allocations))
	for _, alloc := range result.Allocations {
		bk := merged.PerMarketBooks[alloc.Market.Coin]
		legPrice := alloc.EstimatedAvgPrice
		if bk != nil {
			if sim, err := SimulateFill(bk, side, alloc.Size); err == nil {
				legPrice = sim.AvgPrice
			}
		}
		legs = append(legs, *buildLeg(alloc.Market, side, alloc.Size, legPrice, slippage))
	}

	quote := &types.SplitQuote{
		BaseAsset:          baseAsset,
		Side:               side,
		RequestedSize:      size,
		Allocations:        result.Allocations,
		AggregateAvgPrice:  result.AggregateAvgPrice,
		AggregateImpactBps: result.AggregateImpactBps,
		Plan: &types.SplitExecutionPlan{
			Legs:      legs,
			Side:      side,
			TotalSize: result.TotalSize,
			Slippage:  slippage,
			CollateralPlan: &types.CollateralPlan{
				SwapsNeeded: false,
			},
		},
	}
	quote.Warnings = append(quote.Warnings,
		"Collateral requirements are recomputed against live balances at execution time")
	if len(merged.FailedCoins) > 0 {
		quote.Warnings = append(quote.Warnings,
			partialDataWarning(len(merged.PerMarketBooks), len(markets)))
	}
	return quote, nil
}

// fetchBooks fans out one timed fetch per market, keeping slice order.
func (r *Router) fetchBooks(ctx context.Context, markets []types.PerpMarket) []*types.MarketBook {
	books := make([]*types.MarketBook, len(markets))
	var wg sync.WaitGroup
	for i, market := range markets {
		wg.Add(1)
		go func(idx int, coin string) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			raw, err := r.venue.L2Book(fetchCtx, coin, 0)
			if err != nil {
				r.logger.WithError(err).WithField("coin", coin).Warn("book fetch failed")
				return
			}
			books[idx] = book.ParseBook(raw)
		}(i, market.Coin)
	}
	wg.Wait()
	return books
}

// buildLeg constructs one immediate-or-cancel plan leg with the limit
// price set off the simulated average.
func buildLeg(market types.PerpMarket, side types.Side, size, avgPrice, slippage decimal.Decimal) *types.ExecutionPlan {
	return &types.ExecutionPlan{
		Market:     market,
		Side:       side,
		Size:       size,
		LimitPrice: LimitPrice(avgPrice, side, slippage),
		OrderKind:  types.OrderKindIocLimit,
		Slippage:   slippage,
	}
}

// LimitPrice applies slippage headroom to an average price: above for
// buys, below for sells, rounded to six decimals.
func LimitPrice(avgPrice decimal.Decimal, side types.Side, slippage decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	factor := one.Add(slippage)
	if side == types.SideSell {
		factor = one.Sub(slippage)
	}
	return avgPrice.Mul(factor).Round(limitPricePrecision)
}

func partialDataWarning(responded, total int) string {
	return fmt.Sprintf("Partial market data: %d/%d markets responded", responded, total)
}
