/*

This file contains the per-vault manager configuration and the capability
model used to gate every entry point.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Rates are expressed in parts-per-ten-million (1e7 = 100%).
const (
	RateDenominator          = 10_000_000
	MaxManagementFeeRate     = 200_000   // 2%
	MaxPerformanceFeeRate    = 2_000_000 // 20%
	DefaultMaxRanges         = 20
	AbsoluteMaxRanges        = 30
	DefaultProtocolFeeFactor = 1_000_000 // 10% of the performance fee goes to the protocol
)

// Error definitions for zero-tolerance error handling
var (
	ErrFeeRateTooHigh     = errors.New("fee rate exceeds the allowed ceiling")
	ErrInvalidDeviation   = errors.New("allowed deviation is invalid")
	ErrEmptyAddress       = errors.New("address cannot be empty")
	ErrInvalidMaxRanges   = errors.New("max ranges is out of bounds")
	ErrNotPendingOperator = errors.New("caller is not the pending operator")
)

// ManagerConfig is 1:1 with a vault. Operator transfer is a two-step
// propose/accept handshake; every other field is a single-step
// operator-gated mutation that emits a ConfigEvent.
type ManagerConfig struct {
	Operator        string `json:"operator"`
	PendingOperator string `json:"pending_operator,omitempty"`
	FeeRecipient    string `json:"fee_recipient"`

	ManagementFeeRate  int64 `json:"management_fee_rate"`  // ppm-10M of minted shares
	PerformanceFeeRate int64 `json:"performance_fee_rate"` // ppm-10M of realized fee gain

	// DepositCeiling bounds the vault's total value in the common unit
	// (18 decimals, asset1 terms). Zero means unlimited.
	DepositCeiling sdkmath.Int `json:"deposit_ceiling"`

	// Deviation tolerances as 18-decimal fractions (e.g. 0.01 = 1%).
	AllowedDeviationPrice sdkmath.LegacyDec `json:"allowed_deviation_price"`
	AllowedDeviationSwap  sdkmath.LegacyDec `json:"allowed_deviation_swap"`

	MaxRanges int `json:"max_ranges"`

	PrivacyMode bool            `json:"privacy_mode"`
	Whitelist   map[string]bool `json:"whitelist,omitempty"`
}

// Validate enforces the configuration bounds before a config is accepted.
func (c *ManagerConfig) Validate() error {
	if c.Operator == "" {
		return fmt.Errorf("%w: operator", ErrEmptyAddress)
	}
	if c.FeeRecipient == "" {
		return fmt.Errorf("%w: fee recipient", ErrEmptyAddress)
	}
	if c.ManagementFeeRate < 0 || c.ManagementFeeRate > MaxManagementFeeRate {
		return fmt.Errorf("%w: management rate %d", ErrFeeRateTooHigh, c.ManagementFeeRate)
	}
	if c.PerformanceFeeRate < 0 || c.PerformanceFeeRate > MaxPerformanceFeeRate {
		return fmt.Errorf("%w: performance rate %d", ErrFeeRateTooHigh, c.PerformanceFeeRate)
	}
	if c.MaxRanges < 1 || c.MaxRanges > AbsoluteMaxRanges {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRanges, c.MaxRanges)
	}
	if c.AllowedDeviationPrice.IsNil() || c.AllowedDeviationPrice.IsNegative() ||
		c.AllowedDeviationPrice.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: price deviation", ErrInvalidDeviation)
	}
	if c.AllowedDeviationSwap.IsNil() || c.AllowedDeviationSwap.IsNegative() ||
		c.AllowedDeviationSwap.GTE(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: swap deviation", ErrInvalidDeviation)
	}
	if c.DepositCeiling.IsNil() || c.DepositCeiling.IsNegative() {
		return errors.New("deposit ceiling cannot be negative")
	}
	return nil
}

// IsWhitelisted reports whether addr may mint or burn under privacy mode.
func (c *ManagerConfig) IsWhitelisted(addr string) bool {
	if !c.PrivacyMode {
		return true
	}
	return c.Whitelist[addr]
}

// Capability is the authorization level required by an entry point,
// resolved once per call.
type Capability int

const (
	CapabilityPublic Capability = iota
	CapabilityWhitelisted
	CapabilityOperator
)

func (c Capability) String() string {
	switch c {
	case CapabilityOperator:
		return "operator"
	case CapabilityWhitelisted:
		return "whitelisted"
	default:
		return "public"
	}
}
