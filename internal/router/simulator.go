package router

import (
	"github.com/shopspring/decimal"

	"github.com/hyperbroker/hyperbroker/pkg/types"
)

var bpsFactor = decimal.NewFromInt(10000)

// SimulateFill walks one side of a book to estimate the cost of an
// immediate fill. Buys consume asks, sells consume bids. The walk is
// strict: if cumulative depth cannot cover the size it fails with
// InsufficientDepth instead of returning a partial fill.
//
// The arithmetic is pure decimal, so identical input always yields
// bit-identical output.
func SimulateFill(book *types.MarketBook, side types.Side, size decimal.Decimal) (*types.SimulationResult, error) {
	levels := book.Asks
	if side == types.SideSell {
		levels = book.Bids
	}

	remaining := size
	totalCost := decimal.Zero
	available := decimal.Zero
	for _, lvl := range levels {
		available = available.Add(lvl.Size)
		if remaining.IsPositive() {
			fill := decimal.Min(remaining, lvl.Size)
			totalCost = totalCost.Add(fill.Mul(lvl.Price))
			remaining = remaining.Sub(fill)
		}
	}

	if remaining.IsPositive() {
		return nil, &types.InsufficientDepthError{RequestedSize: size, AvailableSize: available}
	}

	avgPrice := totalCost.Div(size)
	mid := midPrice(book)

	impact := decimal.Zero
	if !mid.IsZero() {
		impact = avgPrice.Sub(mid).Abs().Div(mid).Mul(bpsFactor)
	}

	return &types.SimulationResult{
		AvgPrice:       avgPrice,
		MidPrice:       mid,
		PriceImpactBps: impact,
		TotalCost:      totalCost,
		FilledSize:     size,
	}, nil
}

// midPrice is the bid/ask midpoint, the single-sided best when only
// one side exists, or zero for an empty book.
func midPrice(book *types.MarketBook) decimal.Decimal {
	bid, ask := book.BestBid(), book.BestAsk()
	switch {
	case !bid.IsZero() && !ask.IsZero():
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	case !bid.IsZero():
		return bid
	default:
		return ask
	}
}
