package position

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/internal/registry"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// AccountReader fetches the perp clearinghouse state for a user.
type AccountReader interface {
	ClearinghouseState(ctx context.Context, user string) (*hyperliquid.UserState, error)
}

// MarketSource exposes the discovered market index so positions can be
// tagged with their normalized base asset.
type MarketSource interface {
	AllGroups() []types.MarketGroup
}

// Manager normalizes venue positions across markets. Positions hold a
// (BaseAsset, Coin) value copy, never a reference into the registry.
type Manager struct {
	venue   AccountReader
	markets MarketSource
	logger  *logrus.Entry
}

// NewManager creates a position manager.
func NewManager(venue AccountReader, markets MarketSource) *Manager {
	return &Manager{
		venue:   venue,
		markets: markets,
		logger:  logrus.WithField("component", "position"),
	}
}

// Positions returns the user's open positions normalized across
// markets, sorted by base asset then coin. ManagedBySDK is advisory and
// currently always unknown: tagging needs a durable local fills index.
func (m *Manager) Positions(ctx context.Context, user string) ([]types.LogicalPosition, error) {
	state, err := m.venue.ClearinghouseState(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("position read failed: %w", err)
	}

	baseByCoin := make(map[string]string)
	for _, group := range m.markets.AllGroups() {
		for _, market := range group.Markets {
			baseByCoin[market.Coin] = market.BaseAsset
		}
	}

	positions := make([]types.LogicalPosition, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		pos, ok := normalize(ap.Position, baseByCoin)
		if !ok {
			continue
		}
		positions = append(positions, pos)
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].BaseAsset != positions[j].BaseAsset {
			return positions[i].BaseAsset < positions[j].BaseAsset
		}
		return positions[i].Coin < positions[j].Coin
	})
	return positions, nil
}

// GroupedPositions maps base asset to that asset's open positions.
func (m *Manager) GroupedPositions(ctx context.Context, user string) (map[string][]types.LogicalPosition, error) {
	positions, err := m.Positions(ctx, user)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]types.LogicalPosition)
	for _, pos := range positions {
		grouped[pos.BaseAsset] = append(grouped[pos.BaseAsset], pos)
	}
	return grouped, nil
}

// normalize converts a raw venue position. Zero-size entries are
// dropped; a negative signed size is a short.
func normalize(raw hyperliquid.Position, baseByCoin map[string]string) (types.LogicalPosition, bool) {
	szi, err := decimal.NewFromString(raw.Szi)
	if err != nil || szi.IsZero() {
		return types.LogicalPosition{}, false
	}

	side := types.SideBuy
	if szi.IsNegative() {
		side = types.SideSell
	}

	base, ok := baseByCoin[raw.Coin]
	if !ok {
		// Coins outside the discovered index still normalize; the coin
		// shape alone decides whether a deployer prefix gets stripped.
		base = registry.ExtractBaseAsset(raw.Coin, !strings.Contains(raw.Coin, ":"))
	}

	pos := types.LogicalPosition{
		BaseAsset:     base,
		Coin:          raw.Coin,
		Side:          side,
		Size:          szi.Abs(),
		UnrealizedPnl: parseDecimal(raw.UnrealizedPnl),
		Leverage:      raw.Leverage.Value,
		ManagedBySDK:  types.ManagedStateUnknown,
	}
	if raw.EntryPx != nil {
		pos.EntryPrice = parseDecimal(*raw.EntryPx)
	}
	if raw.LiquidationPx != nil {
		if liq, err := decimal.NewFromString(*raw.LiquidationPx); err == nil {
			pos.LiquidationPrice = &liq
		}
	}
	if !pos.Size.IsZero() {
		value := parseDecimal(raw.PositionValue)
		if !value.IsZero() {
			pos.MarkPrice = value.Div(pos.Size)
		}
	}
	return pos, true
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
