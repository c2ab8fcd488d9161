/*

This file contains the per asset-pair price source configuration. Pair
configurations are read-only at runtime and may be shared across vaults
trading the same pair.

*/

package types

import (
	"errors"
	"fmt"
	"time"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnsupportedDecimals = errors.New("asset decimals exceed the fixed-point unit")
	ErrInvalidPairConfig   = errors.New("pair configuration is invalid")
)

// Asset describes one side of the managed pair.
type Asset struct {
	Symbol   string `json:"symbol"`   // e.g. "WETH"
	Decimals int    `json:"decimals"` // native decimal precision, must be <= 18
}

// Validate rejects assets the fixed-point unit cannot represent without
// precision loss. This is a configuration-time check, not a runtime path.
func (a Asset) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidPairConfig)
	}
	if a.Decimals < 0 || a.Decimals > 18 {
		return fmt.Errorf("%w: %s has %d decimals", ErrUnsupportedDecimals, a.Symbol, a.Decimals)
	}
	return nil
}

// PriceSourceKind selects where a pair's price comes from.
type PriceSourceKind string

const (
	PriceSourceTWAP PriceSourceKind = "twap" // time-weighted tick history of the pool itself
	PriceSourceFeed PriceSourceKind = "feed" // independent reference feed
)

// PairConfig selects the price source for an asset pair plus its staleness
// bound and observation window. Defaults apply unless overridden per pair.
type PairConfig struct {
	Asset0 Asset           `json:"asset_0"`
	Asset1 Asset           `json:"asset_1"`
	Source PriceSourceKind `json:"source"`

	// Heartbeat is the maximum accepted feed age. Zero means the
	// registry default for the pair applies.
	Heartbeat time.Duration `json:"heartbeat"`

	// TwapWindow is the trailing observation window for TWAP pricing.
	TwapWindow time.Duration `json:"twap_window"`
}

// PairKey is the registry key for a pair, e.g. "WETH/USDC".
func (p PairConfig) PairKey() string {
	return p.Asset0.Symbol + "/" + p.Asset1.Symbol
}

// Validate checks both assets and the source selection.
func (p PairConfig) Validate() error {
	if err := p.Asset0.Validate(); err != nil {
		return err
	}
	if err := p.Asset1.Validate(); err != nil {
		return err
	}
	switch p.Source {
	case PriceSourceTWAP, PriceSourceFeed:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidPairConfig, p.Source)
	}
	if p.TwapWindow <= 0 {
		return fmt.Errorf("%w: twap window must be positive", ErrInvalidPairConfig)
	}
	return nil
}
