package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/internal/book"
	"github.com/hyperbroker/hyperbroker/internal/collateral"
	"github.com/hyperbroker/hyperbroker/internal/config"
	"github.com/hyperbroker/hyperbroker/internal/executor"
	"github.com/hyperbroker/hyperbroker/internal/position"
	"github.com/hyperbroker/hyperbroker/internal/registry"
	"github.com/hyperbroker/hyperbroker/internal/router"
	"github.com/hyperbroker/hyperbroker/pkg/bus"
	"github.com/hyperbroker/hyperbroker/pkg/cache"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// Venue is the full client surface the broker wires into its
// components. *hyperliquid.Client satisfies it; tests substitute fakes.
type Venue interface {
	Meta(ctx context.Context, dex string) (*hyperliquid.Meta, error)
	MetaAndAssetCtxs(ctx context.Context, dex string) (*hyperliquid.MetaAndAssetCtxs, error)
	PerpDexs(ctx context.Context) ([]*hyperliquid.PerpDex, error)
	SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error)
	L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error)
	ClearinghouseState(ctx context.Context, user string) (*hyperliquid.UserState, error)
	SpotClearinghouseState(ctx context.Context, user string) (*hyperliquid.SpotUserState, error)
	FundingHistory(ctx context.Context, coin string, startMs, endMs int64) ([]hyperliquid.FundingRecord, error)
	PlaceOrder(ctx context.Context, params hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) (*hyperliquid.OrderStatus, error)
	BatchOrders(ctx context.Context, params []hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) ([]hyperliquid.OrderStatus, error)
	MaxBuilderFee(ctx context.Context, user, builder string) (int, error)
	ApproveBuilderFee(ctx context.Context, maxFeeRate, builder string) error
	UsdClassTransfer(ctx context.Context, amount string, toPerp bool) error
	SetDexAbstraction(ctx context.Context, enabled bool) error
	CanTrade() bool
	WalletAddress() string
}

// Broker wires the routing subsystems behind one API: discover markets,
// produce reviewable quotes, and execute them with automatic collateral
// preparation.
type Broker struct {
	cfg    *config.Config
	venue  Venue
	logger *logrus.Entry

	registry   *registry.Registry
	aggregator *book.Aggregator
	router     *router.Router
	collateral *collateral.Manager
	executor   *executor.Executor
	positions  *position.Manager
	events     *bus.Client

	mu        sync.RWMutex
	connected bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithVenue substitutes the venue client, for tests.
func WithVenue(v Venue) Option {
	return func(b *Broker) { b.venue = v }
}

// WithEventBus attaches a NATS event bus. Without one, events are
// silently dropped.
func WithEventBus(client *bus.Client) Option {
	return func(b *Broker) { b.events = client }
}

// New builds a broker from resolved configuration. With a private key
// the broker can trade; without one it is read-only.
func New(cfg *config.Config, opts ...Option) (*Broker, error) {
	b := &Broker{
		cfg:    cfg,
		logger: logrus.WithField("component", "broker"),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.venue == nil {
		clientOpts := []hyperliquid.Option{}
		if cfg.PrivateKey != "" {
			signer, err := hyperliquid.NewSigner(cfg.PrivateKey)
			if err != nil {
				return nil, &types.InvalidConfigError{Msg: err.Error()}
			}
			clientOpts = append(clientOpts, hyperliquid.WithSigner(signer))
		}
		b.venue = hyperliquid.NewClient(cfg.Testnet, clientOpts...)
	}

	// Spot metadata is near-static; a short TTL keeps collateral
	// estimation from refetching it on every call.
	venue := newMetaCachingVenue(b.venue, cache.NewSnapshotCache())

	b.registry = registry.New(venue)
	b.aggregator = book.New(b.registry, venue)
	b.collateral = collateral.NewManager(venue)
	b.router = router.New(b.registry, venue, b.aggregator, b.collateral)
	b.executor = executor.New(venue, cfg.Builder)
	b.positions = position.NewManager(venue, b.registry)
	b.venue = venue
	return b, nil
}

// Connect runs market discovery. It must be called before any other
// API; calling it again refreshes the index.
func (b *Broker) Connect(ctx context.Context) error {
	if err := b.registry.Discover(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *Broker) ensureConnected() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return types.ErrNotConnected
	}
	return nil
}

func (b *Broker) ensureWallet() error {
	if !b.venue.CanTrade() {
		return types.ErrNoWallet
	}
	return nil
}

// walletAddress prefers the configured address and falls back to the
// one derived from the signing key.
func (b *Broker) walletAddress() string {
	if b.cfg.WalletAddress != "" {
		return strings.ToLower(b.cfg.WalletAddress)
	}
	return b.venue.WalletAddress()
}

// Markets returns every market trading the base asset.
func (b *Broker) Markets(baseAsset string) ([]types.PerpMarket, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	markets := b.registry.Markets(baseAsset)
	if len(markets) == 0 {
		return nil, &types.NoMarketsError{BaseAsset: baseAsset}
	}
	return markets, nil
}

// AllGroups returns the full discovered index.
func (b *Broker) AllGroups() ([]types.MarketGroup, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	return b.registry.AllGroups(), nil
}

// Book returns the merged orderbook for a base asset.
func (b *Broker) Book(ctx context.Context, baseAsset string) (*types.AggregatedBook, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if len(b.registry.Markets(baseAsset)) == 0 {
		return nil, &types.NoMarketsError{BaseAsset: baseAsset}
	}
	merged, err := b.aggregator.Aggregate(ctx, baseAsset)
	if err != nil {
		return nil, err
	}
	if len(merged.PerMarketBooks) == 0 {
		return nil, &types.MarketDataUnavailableError{BaseAsset: baseAsset, FailedCoins: merged.FailedCoins}
	}
	return merged, nil
}

// FundingInfo pairs a market with its recent funding history.
type FundingInfo struct {
	Market  types.PerpMarket            `json:"market"`
	History []hyperliquid.FundingRecord `json:"history,omitempty"`
}

// Funding returns current funding rates, and the last day of funding
// history, for every market trading the asset. History fetch failures
// degrade to the registry's snapshot rate.
func (b *Broker) Funding(ctx context.Context, baseAsset string) ([]FundingInfo, error) {
	markets, err := b.Markets(baseAsset)
	if err != nil {
		return nil, err
	}

	start := time.Now().Add(-24 * time.Hour).UnixMilli()
	out := make([]FundingInfo, len(markets))
	var wg sync.WaitGroup
	for i, market := range markets {
		out[i].Market = market
		wg.Add(1)
		go func(idx int, coin string) {
			defer wg.Done()
			history, err := b.venue.FundingHistory(ctx, coin, start, 0)
			if err != nil {
				b.logger.WithError(err).WithField("coin", coin).Debug("funding history fetch failed")
				return
			}
			out[idx].History = history
		}(i, market.Coin)
	}
	wg.Wait()
	return out, nil
}

// userCollateral resolves the set of tokens the user can margin with:
// the account-native collateral always, plus every spot token held with
// a positive balance. Without a wallet only the native token counts.
func (b *Broker) userCollateral(ctx context.Context) map[string]bool {
	held := map[string]bool{types.NativeCollateral: true}
	user := b.walletAddress()
	if user == "" {
		return held
	}

	state, err := b.venue.SpotClearinghouseState(ctx, user)
	if err != nil {
		b.logger.WithError(err).Warn("spot balance read failed; assuming native collateral only")
		return held
	}
	for _, bal := range state.Balances {
		total, err := decimal.NewFromString(bal.Total)
		if err != nil || !total.IsPositive() {
			continue
		}
		held[strings.ToUpper(bal.Coin)] = true
	}
	return held
}

// Quote routes an order to the single best market.
func (b *Broker) Quote(ctx context.Context, baseAsset string, side types.Side, size decimal.Decimal) (*types.Quote, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	quote, err := b.router.Quote(ctx, baseAsset, side, size, b.userCollateral(ctx), b.cfg.DefaultSlippage)
	if err != nil {
		return nil, err
	}
	b.events.PublishQuote(baseAsset, quote)
	return quote, nil
}

// QuoteSplit routes an order across every market with usable depth.
func (b *Broker) QuoteSplit(ctx context.Context, baseAsset string, side types.Side, size decimal.Decimal) (*types.SplitQuote, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	quote, err := b.router.QuoteSplit(ctx, baseAsset, side, size, b.userCollateral(ctx), b.cfg.DefaultSlippage)
	if err != nil {
		return nil, err
	}
	b.events.PublishQuote(baseAsset, quote)
	return quote, nil
}

// Execute submits a single-market quote's plan.
func (b *Broker) Execute(ctx context.Context, quote *types.Quote) (*types.ExecutionReceipt, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if err := b.ensureWallet(); err != nil {
		return nil, err
	}
	receipt := b.executor.Execute(ctx, quote.Plan, b.walletAddress())
	b.events.PublishExecution(quote.BaseAsset, receipt)
	return receipt, nil
}

// ExecuteSplit prepares collateral and submits a split quote's legs as
// one batch.
func (b *Broker) ExecuteSplit(ctx context.Context, quote *types.SplitQuote) (*types.SplitExecutionReceipt, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if err := b.ensureWallet(); err != nil {
		return nil, err
	}
	receipt := b.executor.ExecuteSplit(ctx, quote.Plan, b.collateral, b.walletAddress())
	b.events.PublishExecution(quote.BaseAsset, receipt)
	if receipt.CollateralReceipt != nil {
		for _, swap := range receipt.CollateralReceipt.SwapsExecuted {
			b.events.PublishSwap(swap.Token, swap)
		}
	}
	return receipt, nil
}

// Long quotes and immediately executes a buy.
func (b *Broker) Long(ctx context.Context, baseAsset string, size decimal.Decimal) (*types.Quote, *types.ExecutionReceipt, error) {
	return b.quoteAndExecute(ctx, baseAsset, types.SideBuy, size)
}

// Short quotes and immediately executes a sell.
func (b *Broker) Short(ctx context.Context, baseAsset string, size decimal.Decimal) (*types.Quote, *types.ExecutionReceipt, error) {
	return b.quoteAndExecute(ctx, baseAsset, types.SideSell, size)
}

func (b *Broker) quoteAndExecute(ctx context.Context, baseAsset string, side types.Side, size decimal.Decimal) (*types.Quote, *types.ExecutionReceipt, error) {
	if err := b.ensureWallet(); err != nil {
		return nil, nil, err
	}
	quote, err := b.Quote(ctx, baseAsset, side, size)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := b.Execute(ctx, quote)
	if err != nil {
		return quote, nil, err
	}
	return quote, receipt, nil
}

// Positions returns the user's normalized open positions.
func (b *Broker) Positions(ctx context.Context) ([]types.LogicalPosition, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if err := b.ensureWallet(); err != nil {
		return nil, err
	}
	return b.positions.Positions(ctx, b.walletAddress())
}

// GroupedPositions maps base asset to the user's positions in it.
func (b *Broker) GroupedPositions(ctx context.Context) (map[string][]types.LogicalPosition, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if err := b.ensureWallet(); err != nil {
		return nil, err
	}
	return b.positions.GroupedPositions(ctx, b.walletAddress())
}

// Balances returns the combined perp and spot account view.
func (b *Broker) Balances(ctx context.Context) (*types.Balances, error) {
	if err := b.ensureConnected(); err != nil {
		return nil, err
	}
	if err := b.ensureWallet(); err != nil {
		return nil, err
	}
	user := b.walletAddress()

	perp, err := b.venue.ClearinghouseState(ctx, user)
	if err != nil {
		return nil, err
	}
	spot, err := b.venue.SpotClearinghouseState(ctx, user)
	if err != nil {
		return nil, err
	}

	out := &types.Balances{
		PerpAccountValue: parseDecimal(perp.MarginSummary.AccountValue),
		PerpMarginUsed:   parseDecimal(perp.MarginSummary.TotalMarginUsed),
		Withdrawable:     parseDecimal(perp.Withdrawable),
	}
	for _, bal := range spot.Balances {
		out.Spot = append(out.Spot, types.SpotBalance{
			Token: bal.Coin,
			Total: parseDecimal(bal.Total),
			Hold:  parseDecimal(bal.Hold),
		})
	}
	return out, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
