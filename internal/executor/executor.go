package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hyperbroker/hyperbroker/internal/collateral"
	"github.com/hyperbroker/hyperbroker/internal/config"
	"github.com/hyperbroker/hyperbroker/pkg/hyperliquid"
	"github.com/hyperbroker/hyperbroker/pkg/types"
)

// Venue is the client surface the executor consumes.
type Venue interface {
	MaxBuilderFee(ctx context.Context, user, builder string) (int, error)
	ApproveBuilderFee(ctx context.Context, maxFeeRate, builder string) error
	PlaceOrder(ctx context.Context, params hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) (*hyperliquid.OrderStatus, error)
	BatchOrders(ctx context.Context, params []hyperliquid.OrderParams, builder *hyperliquid.BuilderInfo) ([]hyperliquid.OrderStatus, error)
}

// Executor submits execution plans. It enforces the builder-fee
// approval once per process lifetime and synthesizes per-leg receipts
// from the venue's order statuses.
type Executor struct {
	venue   Venue
	builder *config.Builder
	logger  *logrus.Entry

	approveMu sync.Mutex
	approved  bool
}

// New creates an executor. builder may be nil: submissions then carry
// no builder attribution.
func New(venue Venue, builder *config.Builder) *Executor {
	return &Executor{
		venue:   venue,
		builder: builder,
		logger:  logrus.WithField("component", "executor"),
	}
}

// builderInfo converts the configured builder into its wire form. The
// wire fee unit is tenths of a basis point.
func (e *Executor) builderInfo() *hyperliquid.BuilderInfo {
	if e.builder == nil {
		return nil
	}
	return &hyperliquid.BuilderInfo{
		Address: e.builder.Address,
		FeeRate: e.builder.FeeBps * 10,
	}
}

// ensureBuilderApproval checks the current authorization and approves
// the configured fee if needed. The check runs at most once per
// process; approval failures are logged but never abort the trade, and
// the flag is set either way to avoid retry floods.
func (e *Executor) ensureBuilderApproval(ctx context.Context, user string) {
	if e.builder == nil {
		return
	}

	e.approveMu.Lock()
	defer e.approveMu.Unlock()
	if e.approved {
		return
	}
	e.approved = true

	current, err := e.venue.MaxBuilderFee(ctx, user, e.builder.Address)
	if err != nil {
		e.logger.WithError(err).Warn("builder fee check failed; proceeding without approval")
		return
	}
	if current >= e.builder.FeeBps*10 {
		return
	}

	rate := decimal.NewFromInt(int64(e.builder.FeeBps)).Div(decimal.NewFromInt(100)).String() + "%"
	if err := e.venue.ApproveBuilderFee(ctx, rate, e.builder.Address); err != nil {
		e.logger.WithError(err).Warn("builder fee approval failed; orders will carry no builder fee authorization")
		return
	}
	e.logger.WithField("max_fee_rate", rate).Info("builder fee approved")
}

// newCloid generates a 128-bit client order ID in the venue's 0x-hex
// form, so fills can be correlated back to the submitting leg.
func newCloid() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

// orderParams converts a plan leg into a wire order payload.
func orderParams(plan *types.ExecutionPlan) hyperliquid.OrderParams {
	return hyperliquid.OrderParams{
		AssetIndex:    plan.Market.AssetIndex,
		IsBuy:         plan.Side == types.SideBuy,
		Price:         plan.LimitPrice.String(),
		Size:          plan.Size.String(),
		ReduceOnly:    false,
		OrderType:     hyperliquid.OrderType{Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc}},
		ClientOrderID: newCloid(),
	}
}

// mapStatus translates a venue order status to a receipt. A resting
// IOC is an accepted submission with no fill, not a failure.
func mapStatus(status hyperliquid.OrderStatus) types.ExecutionReceipt {
	switch {
	case status.Filled != nil:
		receipt := types.ExecutionReceipt{Success: true, OrderID: status.Filled.Oid}
		if sz, err := decimal.NewFromString(status.Filled.TotalSz); err == nil {
			receipt.FilledSize = sz
		}
		if px, err := decimal.NewFromString(status.Filled.AvgPx); err == nil {
			receipt.AvgPrice = px
		}
		return receipt
	case status.Resting != nil:
		return types.ExecutionReceipt{Success: true, OrderID: status.Resting.Oid}
	case status.Error != "":
		return types.ExecutionReceipt{Success: false, Error: status.Error}
	default:
		return types.ExecutionReceipt{Success: false, Error: "unrecognized order status"}
	}
}

// Execute submits a single-leg plan.
func (e *Executor) Execute(ctx context.Context, plan *types.ExecutionPlan, user string) *types.ExecutionReceipt {
	e.ensureBuilderApproval(ctx, user)

	status, err := e.venue.PlaceOrder(ctx, orderParams(plan), e.builderInfo())
	if err != nil {
		return &types.ExecutionReceipt{Success: false, Error: err.Error()}
	}
	receipt := mapStatus(*status)
	e.logger.WithFields(logrus.Fields{
		"coin":    plan.Market.Coin,
		"success": receipt.Success,
		"filled":  receipt.FilledSize.String(),
	}).Info("order submitted")
	return &receipt
}

// ExecuteSplit prepares collateral against live balances and then
// submits every leg in one batch so the venue sees a single logical
// group. Collateral failure aborts before any perp leg is placed.
func (e *Executor) ExecuteSplit(ctx context.Context, plan *types.SplitExecutionPlan,
	cm *collateral.Manager, user string) *types.SplitExecutionReceipt {

	receipt := &types.SplitExecutionReceipt{}

	allocations := make([]types.SplitAllocation, len(plan.Legs))
	for i, leg := range plan.Legs {
		allocations[i] = types.SplitAllocation{
			Market:        leg.Market,
			Size:          leg.Size,
			EstimatedCost: leg.Size.Mul(leg.LimitPrice),
		}
	}

	collateralPlan, err := cm.EstimateRequirements(ctx, allocations, user)
	if err != nil {
		receipt.Error = err.Error()
		return receipt
	}

	if collateralPlan.SwapsNeeded {
		prep := cm.Prepare(ctx, collateralPlan, user)
		receipt.CollateralReceipt = prep
		if !prep.Success {
			receipt.Error = fmt.Sprintf("collateral preparation failed: %s", prep.Error)
			return receipt
		}
	}

	e.ensureBuilderApproval(ctx, user)

	params := make([]hyperliquid.OrderParams, len(plan.Legs))
	for i := range plan.Legs {
		params[i] = orderParams(&plan.Legs[i])
	}

	statuses, err := e.venue.BatchOrders(ctx, params, e.builderInfo())
	if err != nil {
		receipt.Error = err.Error()
		return receipt
	}

	receipt.Success = true
	for i, status := range statuses {
		leg := types.LegReceipt{
			Market:  plan.Legs[i].Market,
			Size:    plan.Legs[i].Size,
			Receipt: mapStatus(status),
		}
		if !leg.Receipt.Success {
			receipt.Success = false
		}
		receipt.Legs = append(receipt.Legs, leg)
	}

	e.logger.WithFields(logrus.Fields{
		"legs":    len(receipt.Legs),
		"success": receipt.Success,
	}).Info("split order submitted")
	return receipt
}
