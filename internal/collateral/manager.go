package collateral

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/internal/book"
	"github.com/hyperbroker/hyperbroker/internal/router"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

var (
	// transferBuffer over-funds spot transfers to absorb swap slippage.
	transferBuffer = decimal.NewFromFloat(1.01)
	// swapPriceBuffer prices the IOC swap just through the best ask.
	swapPriceBuffer = decimal.NewFromFloat(1.005)

	// fallbackSwapCostBps is used when the spot book is unavailable.
	fallbackSwapCostBps = decimal.NewFromInt(50)
	// deepSwapCostBps is used when the spot book cannot cover the size.
	deepSwapCostBps = decimal.NewFromInt(100)
)

// Venue is the client surface the collateral manager consumes.
type Venue interface {
	SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error)
	SpotClearinghouseState(ctx context.Context, user string) (*hyperliquid.SpotUserState, error)
	ClearinghouseState(ctx context.Context, user string) (*hyperliquid.UserState, error)
	L2Book(ctx context.Context, coin string, nSigFigs int) (*hyperliquid.L2Book, error)
	UsdClassTransfer(ctx context.Context, amount string, toPerp bool) error
	PlaceOrder(ctx context.Context, params hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) (*hyperliquid.OrderStatus, error)
	SetDexAbstraction(ctx context.Context, enabled bool) error
}

// Manager estimates collateral shortfalls for a plan and prepares the
// account before trading: it enables abstraction mode, moves USDC from
// perp to spot, and buys the required tokens with IOC spot orders.
type Manager struct {
	venue  Venue
	logger *logrus.Entry

	mu                 sync.Mutex
	abstractionEnabled bool
}

// NewManager creates a collateral manager.
func NewManager(venue Venue) *Manager {
	return &Manager{
		venue:  venue,
		logger: logrus.WithField("component", "collateral"),
	}
}

// EstimateRequirements computes per-token shortfalls for a set of
// allocations against the user's current balances. The account-native
// collateral never produces a shortfall: abstraction mode draws it
// from the perp balance directly.
func (m *Manager) EstimateRequirements(ctx context.Context, allocations []types.SplitAllocation, user string) (*types.CollateralPlan, error) {
	spotState, err := m.venue.SpotClearinghouseState(ctx, user)
	if err != nil {
		return nil, &types.CollateralError{Msg: fmt.Sprintf("spot balance read failed: %v", err)}
	}
	if _, err := m.venue.ClearinghouseState(ctx, user); err != nil {
		return nil, &types.CollateralError{Msg: fmt.Sprintf("margin summary read failed: %v", err)}
	}

	balances := make(map[string]decimal.Decimal, len(spotState.Balances))
	for _, bal := range spotState.Balances {
		total, err := decimal.NewFromString(bal.Total)
		if err != nil {
			continue
		}
		balances[strings.ToUpper(bal.Coin)] = total
	}

	// Aggregate the needed amount per collateral token, keeping first-seen
	// token order stable.
	needed := make(map[string]decimal.Decimal)
	var tokenOrder []string
	for _, alloc := range allocations {
		token := alloc.Market.Collateral
		if _, ok := needed[token]; !ok {
			tokenOrder = append(tokenOrder, token)
		}
		needed[token] = needed[token].Add(alloc.EstimatedCost)
	}

	plan := &types.CollateralPlan{}
	type costQuery struct {
		index  int
		token  string
		amount decimal.Decimal
	}
	var queries []costQuery

	for _, token := range tokenOrder {
		req := types.CollateralRequirement{
			Token:          token,
			AmountNeeded:   needed[token],
			CurrentBalance: balances[strings.ToUpper(token)],
		}
		if token == types.NativeCollateral {
			req.Shortfall = decimal.Zero
		} else {
			req.Shortfall = decimal.Max(decimal.Zero, req.AmountNeeded.Sub(req.CurrentBalance))
		}
		if req.Shortfall.IsPositive() {
			req.SwapFrom = types.NativeCollateral
			queries = append(queries, costQuery{index: len(plan.Requirements), token: token, amount: req.Shortfall})
			plan.SwapsNeeded = true
		}
		plan.Requirements = append(plan.Requirements, req)
	}

	// Swap-cost lookups are independent reads; issue them together.
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q costQuery) {
			defer wg.Done()
			cost, err := m.EstimateSwapCost(ctx, types.NativeCollateral, q.token, q.amount)
			if err != nil {
				cost = fallbackSwapCostBps
			}
			plan.Requirements[q.index].EstimatedSwapCostBps = cost
		}(q)
	}
	wg.Wait()

	plan.TotalSwapCostBps = weightedSwapCost(plan.Requirements)
	m.mu.Lock()
	plan.AbstractionEnabled = m.abstractionEnabled
	m.mu.Unlock()
	return plan, nil
}

// weightedSwapCost aggregates per-token swap costs weighted by the
// amount each token funds.
func weightedSwapCost(reqs []types.CollateralRequirement) decimal.Decimal {
	totalAmount := decimal.Zero
	weighted := decimal.Zero
	for _, req := range reqs {
		if !req.Shortfall.IsPositive() {
			continue
		}
		totalAmount = totalAmount.Add(req.AmountNeeded)
		weighted = weighted.Add(req.EstimatedSwapCostBps.Mul(req.AmountNeeded))
	}
	if totalAmount.IsZero() {
		return decimal.Zero
	}
	return weighted.Div(totalAmount)
}

// EstimateSwapCost measures the cost in basis points of swapping
// `amount` units of `from` into `to` on the spot book. Unavailable
// book data falls back to 50 bps; insufficient depth reports 100 bps.
func (m *Manager) EstimateSwapCost(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	pairCoin, _, err := m.spotPairFor(ctx, to)
	if err != nil {
		return fallbackSwapCostBps, nil
	}

	raw, err := m.venue.L2Book(ctx, pairCoin, 0)
	if err != nil {
		return fallbackSwapCostBps, nil
	}

	spotBook := book.ParseBook(raw)
	sim, err := router.SimulateFill(spotBook, types.SideBuy, amount)
	if err != nil {
		return deepSwapCostBps, nil
	}
	return sim.PriceImpactBps, nil
}

// spotPairFor resolves the spot pair coin and pair index for a token.
func (m *Manager) spotPairFor(ctx context.Context, token string) (string, int, error) {
	meta, err := m.venue.SpotMeta(ctx)
	if err != nil {
		return "", 0, err
	}

	tokenIndex := -1
	for _, tok := range meta.Tokens {
		if strings.EqualFold(tok.Name, token) {
			tokenIndex = tok.Index
			break
		}
	}
	if tokenIndex < 0 {
		return "", 0, fmt.Errorf("unknown spot token %s", token)
	}

	for _, pair := range meta.Universe {
		if pair.Tokens[0] == tokenIndex {
			return pair.Name, pair.Index, nil
		}
	}
	return "", 0, fmt.Errorf("no spot pair for token %s", token)
}

// Prepare executes a collateral plan: enable abstraction once, then
// for each shortfall transfer buffered USDC from perp to spot and buy
// the token with an IOC spot order. Steps are strictly serial so each
// swap observes the previous transfer. On failure the receipt lists
// the swaps that did complete.
func (m *Manager) Prepare(ctx context.Context, plan *types.CollateralPlan, user string) *types.CollateralReceipt {
	receipt := &types.CollateralReceipt{}

	if err := m.ensureAbstraction(ctx); err != nil {
		receipt.Error = fmt.Sprintf("failed to enable abstraction mode: %v", err)
		return receipt
	}
	receipt.AbstractionWasEnabled = true

	meta, err := m.venue.SpotMeta(ctx)
	if err != nil {
		receipt.Error = fmt.Sprintf("spot metadata load failed: %v", err)
		return receipt
	}
	tokenIndexes := make(map[string]int, len(meta.Tokens))
	for _, tok := range meta.Tokens {
		tokenIndexes[strings.ToUpper(tok.Name)] = tok.Index
	}
	pairByToken := make(map[int]hyperliquid.SpotAssetInfo, len(meta.Universe))
	for _, pair := range meta.Universe {
		if _, ok := pairByToken[pair.Tokens[0]]; !ok {
			pairByToken[pair.Tokens[0]] = pair
		}
	}

	for _, req := range plan.Requirements {
		if !req.Shortfall.IsPositive() || req.Token == types.NativeCollateral {
			continue
		}

		swap, err := m.executeSwap(ctx, req, tokenIndexes, pairByToken)
		if err != nil {
			receipt.Error = fmt.Sprintf("%s: %v", req.Token, err)
			return receipt
		}
		receipt.SwapsExecuted = append(receipt.SwapsExecuted, *swap)
	}

	receipt.Success = true
	return receipt
}

func (m *Manager) ensureAbstraction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.abstractionEnabled {
		return nil
	}
	if err := m.venue.SetDexAbstraction(ctx, true); err != nil {
		return err
	}
	m.abstractionEnabled = true
	return nil
}

// executeSwap runs one transfer-then-buy sequence for a single token.
func (m *Manager) executeSwap(ctx context.Context, req types.CollateralRequirement,
	tokenIndexes map[string]int, pairByToken map[int]hyperliquid.SpotAssetInfo) (*types.ExecutedSwap, error) {

	tokenIndex, ok := tokenIndexes[strings.ToUpper(req.Token)]
	if !ok {
		return nil, fmt.Errorf("token not found in spot metadata")
	}
	pair, ok := pairByToken[tokenIndex]
	if !ok {
		return nil, fmt.Errorf("no spot pair for token")
	}

	transferAmount := req.Shortfall.Mul(transferBuffer).Round(2)
	if err := m.venue.UsdClassTransfer(ctx, transferAmount.String(), false); err != nil {
		return nil, fmt.Errorf("perp to spot transfer failed: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"token":  req.Token,
		"amount": transferAmount.String(),
	}).Info("transferred USDC to spot for swap")

	raw, err := m.venue.L2Book(ctx, pair.Name, 0)
	if err != nil {
		return nil, fmt.Errorf("spot book fetch failed: %w", err)
	}
	spotBook := book.ParseBook(raw)
	if len(spotBook.Asks) == 0 {
		return nil, fmt.Errorf("spot book has no asks")
	}

	limitPrice := spotBook.BestAsk().Mul(swapPriceBuffer).Round(6)
	status, err := m.venue.PlaceOrder(ctx, hyperliquid.OrderParams{
		AssetIndex: types.SpotAssetIndex(pair.Index),
		IsBuy:      true,
		Price:      limitPrice.String(),
		Size:       req.Shortfall.String(),
		OrderType:  hyperliquid.OrderType{Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("spot order failed: %w", err)
	}
	if status.Error != "" {
		return nil, fmt.Errorf("spot order rejected: %s", status.Error)
	}

	swap := &types.ExecutedSwap{Token: req.Token, UsdcSpent: transferAmount}
	if status.Filled != nil {
		if filled, err := decimal.NewFromString(status.Filled.TotalSz); err == nil {
			swap.FilledSize = filled
		}
		swap.OrderID = status.Filled.Oid
	} else if status.Resting != nil {
		swap.OrderID = status.Resting.Oid
	}
	return swap, nil
}
