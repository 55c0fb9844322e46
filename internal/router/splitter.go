package router

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// DefaultMinAllocationSize is the dust threshold: allocations below it
// are folded into the largest allocation instead of becoming legs.
var DefaultMinAllocationSize = decimal.NewFromFloat(0.001)

// fillTolerance is the fraction of the requested size the greedy walk
// may leave unfilled before the split counts as infeasible.
var fillTolerance = decimal.NewFromFloat(0.001)

// SplitOptimizer allocates an order across markets by walking the
// aggregated book greedily.
type SplitOptimizer struct {
	MinAllocationSize decimal.Decimal
}

// NewSplitOptimizer creates an optimizer with the default dust
// threshold.
func NewSplitOptimizer() *SplitOptimizer {
	return &SplitOptimizer{MinAllocationSize: DefaultMinAllocationSize}
}

// Optimize walks the active side of the aggregated book and produces
// per-market allocations. Each level's fill is distributed across its
// sources proportionally to their contribution, capped at each
// source's quoted size. Fails with InsufficientLiquidity when the
// merged depth cannot cover the size.
func (o *SplitOptimizer) Optimize(book *types.AggregatedBook, side types.Side,
	size decimal.Decimal, markets map[string]types.PerpMarket) (*types.SplitResult, error) {

	levels := book.Asks
	if side == types.SideSell {
		levels = book.Bids
	}

	type accum struct {
		size decimal.Decimal
		cost decimal.Decimal
	}
	fills := make(map[string]*accum)
	// Track first-seen order so allocation output and tie-breaks are
	// deterministic.
	var coinOrder []string

	remaining := size
	available := decimal.Zero
	for _, lvl := range levels {
		available = available.Add(lvl.TotalSize)
		if !remaining.IsPositive() {
			continue
		}

		levelFill := decimal.Min(remaining, lvl.TotalSize)
		for _, src := range lvl.Sources {
			srcFill := levelFill.Mul(src.Size).Div(lvl.TotalSize)
			if srcFill.GreaterThan(src.Size) {
				srcFill = src.Size
			}
			if !srcFill.IsPositive() {
				continue
			}
			acc, ok := fills[src.Coin]
			if !ok {
				acc = &accum{}
				fills[src.Coin] = acc
				coinOrder = append(coinOrder, src.Coin)
			}
			acc.size = acc.size.Add(srcFill)
			acc.cost = acc.cost.Add(srcFill.Mul(lvl.Price))
		}
		remaining = remaining.Sub(levelFill)
	}

	if remaining.GreaterThan(size.Mul(fillTolerance)) {
		return nil, &types.InsufficientLiquidityError{
			BaseAsset:     book.BaseAsset,
			RequestedSize: size,
			AvailableSize: available,
		}
	}

	allocations := make([]types.SplitAllocation, 0, len(coinOrder))
	for _, coin := range coinOrder {
		acc := fills[coin]
		if !acc.size.IsPositive() {
			continue
		}
		allocations = append(allocations, types.SplitAllocation{
			Market:            markets[coin],
			Size:              acc.size,
			EstimatedCost:     acc.cost,
			EstimatedAvgPrice: acc.cost.Div(acc.size),
		})
	}

	allocations = o.redistributeDust(allocations)

	filled := decimal.Zero
	totalCost := decimal.Zero
	for _, alloc := range allocations {
		filled = filled.Add(alloc.Size)
		totalCost = totalCost.Add(alloc.EstimatedCost)
	}
	for i := range allocations {
		allocations[i].Proportion = allocations[i].Size.Div(filled)
	}

	aggregateAvg := totalCost.Div(filled)
	impact := decimal.Zero
	if mid := book.MidPrice(); !mid.IsZero() {
		impact = aggregateAvg.Sub(mid).Abs().Div(mid).Mul(bpsFactor)
	}

	return &types.SplitResult{
		Allocations:        allocations,
		AggregateAvgPrice:  aggregateAvg,
		AggregateImpactBps: impact,
		TotalSize:          filled,
		TotalCost:          totalCost,
	}, nil
}

// redistributeDust folds allocations below the minimum size into the
// largest allocation, pricing the transferred size at the primary's
// average so total size is preserved exactly. Sorting is stable, so
// equal-size sources keep their original iteration order and the
// earliest one wins primary selection.
func (o *SplitOptimizer) redistributeDust(allocations []types.SplitAllocation) []types.SplitAllocation {
	if len(allocations) <= 1 {
		return allocations
	}

	sort.SliceStable(allocations, func(i, j int) bool {
		return allocations[i].Size.GreaterThan(allocations[j].Size)
	})

	primary := &allocations[0]
	kept := allocations[:1]
	for _, alloc := range allocations[1:] {
		if alloc.Size.GreaterThanOrEqual(o.MinAllocationSize) {
			kept = append(kept, alloc)
			continue
		}
		primary.Size = primary.Size.Add(alloc.Size)
		primary.EstimatedCost = primary.EstimatedCost.Add(alloc.Size.Mul(primary.EstimatedAvgPrice))
		primary.EstimatedAvgPrice = primary.EstimatedCost.Div(primary.Size)
	}
	return kept
}
