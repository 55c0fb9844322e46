package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// VenueMeta is the metadata surface the registry consumes.
type VenueMeta interface {
	SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error)
	PerpDexs(ctx context.Context) ([]*hyperliquid.PerpDex, error)
	MetaAndAssetCtxs(ctx context.Context, dex string) (*hyperliquid.MetaAndAssetCtxs, error)
}

// Registry indexes every perp market by normalized base asset. The
// index is rebuilt from scratch on each Discover call and swapped in
// atomically, so readers always observe one consistent generation.
type Registry struct {
	venue  VenueMeta
	logger *logrus.Entry

	mu     sync.RWMutex
	groups map[string]*types.MarketGroup
	ready  bool
}

// New creates an empty registry.
func New(venue VenueMeta) *Registry {
	return &Registry{
		venue:  venue,
		logger: logrus.WithField("component", "registry"),
		groups: make(map[string]*types.MarketGroup),
	}
}

// Ready reports whether discovery has completed at least once.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Discover rebuilds the full per-asset index. Top-level metadata
// failures propagate; individual deployer failures are logged and that
// deployer is skipped. Repeated calls yield the same index for the
// same venue state.
func (r *Registry) Discover(ctx context.Context) error {
	spotMeta, err := r.venue.SpotMeta(ctx)
	if err != nil {
		return fmt.Errorf("spot metadata discovery failed: %w", err)
	}
	tokenNames := make(map[int]string, len(spotMeta.Tokens))
	for _, tok := range spotMeta.Tokens {
		tokenNames[tok.Index] = tok.Name
	}

	dexs, err := r.venue.PerpDexs(ctx)
	if err != nil {
		return fmt.Errorf("deployer discovery failed: %w", err)
	}

	type dexResult struct {
		index int
		name  string
		data  *hyperliquid.MetaAndAssetCtxs
	}

	results := make([]*dexResult, len(dexs))
	var wg sync.WaitGroup
	for i, dex := range dexs {
		name := ""
		if dex != nil {
			name = dex.Name
		}
		wg.Add(1)
		go func(idx int, dexName string) {
			defer wg.Done()
			data, err := r.venue.MetaAndAssetCtxs(ctx, dexName)
			if err != nil {
				r.logger.WithError(err).WithField("dex", dexName).
					Warn("skipping deployer: context fetch failed")
				return
			}
			results[idx] = &dexResult{index: idx, name: dexName, data: data}
		}(i, name)
	}
	wg.Wait()

	groups := make(map[string]*types.MarketGroup)
	for _, res := range results {
		if res == nil {
			continue
		}
		for local, asset := range res.data.Meta.Universe {
			if asset.IsDelisted {
				continue
			}
			if local >= len(res.data.AssetCtxs) {
				r.logger.WithFields(logrus.Fields{"dex": res.name, "coin": asset.Name}).
					Debug("skipping asset with missing context")
				continue
			}
			market := r.buildMarket(res.index, res.name, local, asset,
				res.data.AssetCtxs[local], res.data.Meta.CollateralToken, tokenNames)
			key := strings.ToUpper(market.BaseAsset)
			group, ok := groups[key]
			if !ok {
				group = &types.MarketGroup{BaseAsset: market.BaseAsset}
				groups[key] = group
			}
			group.Markets = append(group.Markets, market)
		}
	}

	total := 0
	for _, group := range groups {
		group.HasAlternatives = len(group.Markets) > 1
		total += len(group.Markets)
	}

	r.mu.Lock()
	r.groups = groups
	r.ready = true
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"assets":  len(groups),
		"markets": total,
	}).Info("market discovery complete")
	return nil
}

func (r *Registry) buildMarket(dexIndex int, dexName string, localIndex int,
	asset hyperliquid.AssetInfo, ctx hyperliquid.PerpAssetCtx,
	collateralToken *int, tokenNames map[int]string) types.PerpMarket {

	isNative := dexIndex == 0
	dexLabel := dexName
	if isNative {
		dexLabel = types.DexNative
	}

	collateral := types.NativeCollateral
	if !isNative && collateralToken != nil {
		if name, ok := tokenNames[*collateralToken]; ok {
			collateral = name
		} else {
			collateral = fmt.Sprintf("TOKEN_%d", *collateralToken)
		}
	}

	market := types.PerpMarket{
		BaseAsset:   ExtractBaseAsset(asset.Name, isNative),
		Coin:        asset.Name,
		AssetIndex:  types.PerpAssetIndex(dexIndex, localIndex),
		DexName:     dexLabel,
		Collateral:  collateral,
		IsNative:    isNative,
		MaxLeverage: asset.MaxLeverage,
		SzDecimals:  asset.SzDecimals,
	}

	market.Funding = parseDecimal(ctx.Funding)
	market.OpenInterest = parseDecimal(ctx.OpenInterest)
	market.MarkPrice = parseDecimal(ctx.MarkPx)
	market.OraclePrice = ctx.OraclePx
	return market
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ExtractBaseAsset normalizes a venue coin identifier to its base
// asset. Native coins keep their raw name. Deployer coins take the
// substring after the first colon and drop trailing ASCII digits,
// unless stripping would leave nothing. Output is uppercased.
func ExtractBaseAsset(coin string, isNative bool) string {
	if isNative {
		return strings.ToUpper(coin)
	}

	symbol := coin
	if idx := strings.Index(coin, ":"); idx >= 0 {
		symbol = coin[idx+1:]
	}

	stripped := strings.TrimRight(symbol, "0123456789")
	if stripped == "" {
		stripped = symbol
	}
	return strings.ToUpper(stripped)
}

// Markets returns the ordered market list for a base asset;
// the lookup is case-insensitive.
func (r *Registry) Markets(baseAsset string) []types.PerpMarket {
	group := r.Group(baseAsset)
	if group == nil {
		return nil
	}
	return group.Markets
}

// Group returns the full group for a base asset, or nil.
func (r *Registry) Group(baseAsset string) *types.MarketGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group, ok := r.groups[strings.ToUpper(baseAsset)]
	if !ok {
		return nil
	}
	cp := *group
	cp.Markets = append([]types.PerpMarket(nil), group.Markets...)
	return &cp
}

// AllGroups returns every group, sorted by base asset.
func (r *Registry) AllGroups() []types.MarketGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.MarketGroup, 0, len(r.groups))
	for _, group := range r.groups {
		cp := *group
		cp.Markets = append([]types.PerpMarket(nil), group.Markets...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseAsset < out[j].BaseAsset })
	return out
}

// GroupsWithAlternatives returns only groups with more than one market.
func (r *Registry) GroupsWithAlternatives() []types.MarketGroup {
	all := r.AllGroups()
	out := all[:0]
	for _, group := range all {
		if group.HasAlternatives {
			out = append(out, group)
		}
	}
	return out
}
