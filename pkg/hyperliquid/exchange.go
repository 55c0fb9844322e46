package hyperliquid

import (
	"context"
	"fmt"
	"time"
)

// exchangeRequest is the signed envelope for all write actions.
type exchangeRequest struct {
	Action       interface{} `json:"action"`
	Nonce        int64       `json:"nonce"`
	Signature    *signature  `json:"signature"`
	VaultAddress *string     `json:"vaultAddress,omitempty"`
}

// nextNonce returns a strictly increasing millisecond nonce. The venue
// rejects reused nonces, and concurrent writers must not collide.
func (c *Client) nextNonce() int64 {
	c.nonceMu <- struct{}{}
	defer func() { <-c.nonceMu }()

	nonce := time.Now().UnixMilli()
	if nonce <= c.lastNonce {
		nonce = c.lastNonce + 1
	}
	c.lastNonce = nonce
	return nonce
}

// executeAction signs and submits one exchange action.
func (c *Client) executeAction(ctx context.Context, action interface{}, out interface{}) error {
	if c.signer == nil {
		return fmt.Errorf("client has no signer: write operations require a private key")
	}

	nonce := c.nextNonce()
	sig, err := c.signer.signAction(action, nonce, c.isMainnet)
	if err != nil {
		return err
	}

	var envelope apiResponse
	req := &exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if err := c.post(ctx, exchangePath, req, &envelope); err != nil {
		return err
	}
	return envelope.decode(out)
}

func toOrderWire(p OrderParams) orderWire {
	w := orderWire{
		Asset:      p.AssetIndex,
		IsBuy:      p.IsBuy,
		LimitPx:    p.Price,
		Sz:         p.Size,
		ReduceOnly: p.ReduceOnly,
		OrderType: orderTypeWire{
			Limit:   p.OrderType.Limit,
			Trigger: p.OrderType.Trigger,
		},
	}
	if p.ClientOrderID != "" {
		cloid := p.ClientOrderID
		w.Cloid = &cloid
	}
	return w
}

// orderAction is the wire form of an order placement action.
type orderAction struct {
	Type     string       `json:"type"`
	Orders   []orderWire  `json:"orders"`
	Grouping string       `json:"grouping"`
	Builder  *BuilderInfo `json:"builder,omitempty"`
}

// PlaceOrder submits one order and returns its status.
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams, builder *BuilderInfo) (*OrderStatus, error) {
	statuses, err := c.BatchOrders(ctx, []OrderParams{params}, builder)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("venue returned no order status")
	}
	return &statuses[0], nil
}

// BatchOrders submits several orders in one action so the venue sees
// them as one logical group. Statuses are returned in request order.
func (c *Client) BatchOrders(ctx context.Context, params []OrderParams, builder *BuilderInfo) ([]OrderStatus, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no orders to place")
	}

	orders := make([]orderWire, len(params))
	for i, p := range params {
		orders[i] = toOrderWire(p)
	}

	action := &orderAction{Type: "order", Orders: orders, Grouping: "na", Builder: builder}
	var body orderResponseBody
	if err := c.executeAction(ctx, action, &body); err != nil {
		return nil, fmt.Errorf("order placement failed: %w", err)
	}
	if len(body.Data.Statuses) != len(params) {
		return nil, fmt.Errorf("venue returned %d statuses for %d orders",
			len(body.Data.Statuses), len(params))
	}
	return body.Data.Statuses, nil
}

// CancelOrder cancels one resting order by asset index and order ID.
func (c *Client) CancelOrder(ctx context.Context, assetIndex int, oid int64) error {
	action := map[string]interface{}{
		"type": "cancel",
		"cancels": []map[string]interface{}{
			{"a": assetIndex, "o": oid},
		},
	}
	if err := c.executeAction(ctx, action, nil); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	return nil
}

// ApproveBuilderFee authorizes a builder to attach fees up to
// maxFeeRate, a percent string like "0.05%".
func (c *Client) ApproveBuilderFee(ctx context.Context, maxFeeRate, builder string) error {
	action := map[string]interface{}{
		"type":       "approveBuilderFee",
		"maxFeeRate": maxFeeRate,
		"builder":    builder,
	}
	if err := c.executeAction(ctx, action, nil); err != nil {
		return fmt.Errorf("builder fee approval failed: %w", err)
	}
	return nil
}

// SetLeverage updates leverage for one coin.
func (c *Client) SetLeverage(ctx context.Context, assetIndex, leverage int, isCross bool) error {
	action := map[string]interface{}{
		"type":     "updateLeverage",
		"asset":    assetIndex,
		"isCross":  isCross,
		"leverage": leverage,
	}
	if err := c.executeAction(ctx, action, nil); err != nil {
		return fmt.Errorf("set leverage failed: %w", err)
	}
	return nil
}

// UsdClassTransfer moves USDC between the perp and spot balances.
// amount is a decimal string; toPerp false moves perp -> spot.
func (c *Client) UsdClassTransfer(ctx context.Context, amount string, toPerp bool) error {
	action := map[string]interface{}{
		"type":   "usdClassTransfer",
		"amount": amount,
		"toPerp": toPerp,
	}
	if err := c.executeAction(ctx, action, nil); err != nil {
		return fmt.Errorf("usd class transfer failed: %w", err)
	}
	return nil
}

// SetDexAbstraction toggles abstraction mode: with it enabled,
// USDC-margined markets draw from the perp balance while builder
// markets draw the required token from spot.
func (c *Client) SetDexAbstraction(ctx context.Context, enabled bool) error {
	action := map[string]interface{}{
		"type":    "setDexAbstraction",
		"enabled": enabled,
	}
	if err := c.executeAction(ctx, action, nil); err != nil {
		return fmt.Errorf("set dex abstraction failed: %w", err)
	}
	return nil
}
