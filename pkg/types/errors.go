package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for stateless failure modes.
var (
	// ErrNotConnected is returned when the API is used before discovery ran.
	ErrNotConnected = errors.New("not connected: run Connect before using the API")
	// ErrNoWallet is returned for trading operations without credentials.
	ErrNoWallet = errors.New("no wallet configured: trading requires a private key")
)

// NoMarketsError means the registry has no markets for the asset.
type NoMarketsError struct {
	BaseAsset string
}

func (e *NoMarketsError) Error() string {
	return fmt.Sprintf("no markets found for %s", e.BaseAsset)
}

// MarketDataUnavailableError means every relevant book fetch failed.
type MarketDataUnavailableError struct {
	BaseAsset   string
	FailedCoins []string
}

func (e *MarketDataUnavailableError) Error() string {
	return fmt.Sprintf("market data unavailable for %s (failed: %s)",
		e.BaseAsset, strings.Join(e.FailedCoins, ", "))
}

// InsufficientLiquidityError means aggregate depth is below the request.
type InsufficientLiquidityError struct {
	BaseAsset     string
	RequestedSize decimal.Decimal
	AvailableSize decimal.Decimal
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("insufficient liquidity for %s: requested %s, available %s",
		e.BaseAsset, e.RequestedSize.String(), e.AvailableSize.String())
}

// InsufficientDepthError means one book side cannot cover the size.
type InsufficientDepthError struct {
	RequestedSize decimal.Decimal
	AvailableSize decimal.Decimal
}

func (e *InsufficientDepthError) Error() string {
	return fmt.Sprintf("insufficient depth: requested %s, available %s",
		e.RequestedSize.String(), e.AvailableSize.String())
}

// ExecutionError wraps a venue order rejection. Raw retains the wire
// status payload for callers that need it.
type ExecutionError struct {
	Msg string
	Raw string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %s", e.Msg)
}

// InvalidConfigError reports a construction-time configuration problem.
type InvalidConfigError struct {
	Msg string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Msg)
}

// CollateralError is propagated from the collateral manager.
type CollateralError struct {
	Msg string
}

func (e *CollateralError) Error() string {
	return fmt.Sprintf("collateral preparation failed: %s", e.Msg)
}
