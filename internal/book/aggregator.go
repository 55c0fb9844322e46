package book

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// FetchTimeout bounds each per-market book fetch so one slow venue
// cannot stall aggregation.
const FetchTimeout = 2500 * time.Millisecond

// MarketSource resolves the markets trading a base asset.
type MarketSource interface {
	Markets(baseAsset string) []types.PerpMarket
}

// BookFetcher fetches one market's orderbook snapshot.
type BookFetcher interface {
	L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error)
}

// Aggregator merges per-market books into one view per base asset,
// tracking which market contributed each slice of depth. It holds no
// state between calls.
type Aggregator struct {
	markets MarketSource
	venue   BookFetcher
	logger  *logrus.Entry
	timeout time.Duration
}

// New creates an aggregator.
func New(markets MarketSource, venue BookFetcher) *Aggregator {
	return &Aggregator{
		markets: markets,
		venue:   venue,
		logger:  logrus.WithField("component", "book-aggregator"),
		timeout: FetchTimeout,
	}
}

// Aggregate fetches and merges the full book for a base asset. Markets
// whose fetch fails are excluded from the merge and listed in
// FailedCoins; an unknown asset yields an empty book.
func (a *Aggregator) Aggregate(ctx context.Context, baseAsset string) (*types.AggregatedBook, error) {
	markets := a.markets.Markets(baseAsset)
	books, failed := a.fetchAll(ctx, markets)
	return a.merge(baseAsset, markets, books, failed), nil
}

// AggregateForOrder merges books and truncates the active side at the
// smallest prefix covering size. The passive side is returned in full.
func (a *Aggregator) AggregateForOrder(ctx context.Context, baseAsset string, side types.Side, size decimal.Decimal) (*types.AggregatedBook, error) {
	merged, err := a.Aggregate(ctx, baseAsset)
	if err != nil {
		return nil, err
	}

	if side == types.SideBuy {
		merged.Asks = truncateAtDepth(merged.Asks, size)
	} else {
		merged.Bids = truncateAtDepth(merged.Bids, size)
	}
	return merged, nil
}

// fetchAll fetches every market's book concurrently with a per-fetch
// timeout. Results keep the markets' slice order so the merge below is
// deterministic regardless of completion order.
func (a *Aggregator) fetchAll(ctx context.Context, markets []types.PerpMarket) ([]*types.MarketBook, []string) {
	books := make([]*types.MarketBook, len(markets))
	var wg sync.WaitGroup
	for i, market := range markets {
		wg.Add(1)
		go func(idx int, coin string) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			raw, err := a.venue.L2Book(fetchCtx, coin, 0)
			if err != nil {
				a.logger.WithError(err).WithField("coin", coin).Warn("book fetch failed")
				return
			}
			books[idx] = ParseBook(raw)
		}(i, market.Coin)
	}
	wg.Wait()

	var failed []string
	for i, market := range markets {
		if books[i] == nil {
			failed = append(failed, market.Coin)
		}
	}
	return books, failed
}

// ParseBook converts a wire book snapshot to decimal levels. Levels
// with unparseable prices or sizes are dropped.
func ParseBook(raw *hyperliquid.L2Book) *types.MarketBook {
	parse := func(levels []hyperliquid.L2Level) []types.BookLevel {
		out := make([]types.BookLevel, 0, len(levels))
		for _, lvl := range levels {
			price, err := decimal.NewFromString(lvl.Px)
			if err != nil {
				continue
			}
			size, err := decimal.NewFromString(lvl.Sz)
			if err != nil {
				continue
			}
			out = append(out, types.BookLevel{Price: price, Size: size})
		}
		return out
	}
	return &types.MarketBook{
		Coin:        raw.Coin,
		Bids:        parse(raw.Levels[0]),
		Asks:        parse(raw.Levels[1]),
		TimestampMs: raw.Time,
	}
}

// merge combines successful books level by level. Prices are matched
// by their canonical decimal string, never by float comparison, and
// source order within a level follows the market iteration order.
func (a *Aggregator) merge(baseAsset string, markets []types.PerpMarket, books []*types.MarketBook, failed []string) *types.AggregatedBook {
	merged := &types.AggregatedBook{
		BaseAsset:      baseAsset,
		PerMarketBooks: make(map[string]*types.MarketBook),
		FailedCoins:    failed,
	}

	bidLevels := make(map[string]*types.AggregatedLevel)
	askLevels := make(map[string]*types.AggregatedLevel)

	for i, market := range markets {
		bk := books[i]
		if bk == nil {
			continue
		}
		merged.PerMarketBooks[market.Coin] = bk
		if bk.TimestampMs > merged.TimestampMs {
			merged.TimestampMs = bk.TimestampMs
		}
		accumulate(bidLevels, market.Coin, bk.Bids)
		accumulate(askLevels, market.Coin, bk.Asks)
	}

	merged.Bids = sortLevels(bidLevels, true)
	merged.Asks = sortLevels(askLevels, false)
	return merged
}

func accumulate(levels map[string]*types.AggregatedLevel, coin string, side []types.BookLevel) {
	for _, lvl := range side {
		key := lvl.Price.String()
		agg, ok := levels[key]
		if !ok {
			agg = &types.AggregatedLevel{Price: lvl.Price}
			levels[key] = agg
		}
		agg.TotalSize = agg.TotalSize.Add(lvl.Size)
		agg.Sources = append(agg.Sources, types.LevelSource{Coin: coin, Size: lvl.Size})
	}
}

func sortLevels(levels map[string]*types.AggregatedLevel, descending bool) []types.AggregatedLevel {
	out := make([]types.AggregatedLevel, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// truncateAtDepth keeps the smallest prefix whose cumulative size
// covers the requested size; insufficient depth keeps everything.
func truncateAtDepth(levels []types.AggregatedLevel, size decimal.Decimal) []types.AggregatedLevel {
	cumulative := decimal.Zero
	for i, lvl := range levels {
		cumulative = cumulative.Add(lvl.TotalSize)
		if cumulative.GreaterThanOrEqual(size) {
			return levels[:i+1]
		}
	}
	return levels
}
