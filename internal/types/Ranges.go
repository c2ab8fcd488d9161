/*

This is a custom type for liquidity ranges which contains all the state needed
for tracking a single tick interval the vault has deployed capital into.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

type VaultID uint64

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidRangeBounds = errors.New("range bounds are invalid")
	ErrDuplicateRange     = errors.New("duplicate range bounds")
	ErrTooManyRanges      = errors.New("range count exceeds the configured ceiling")
)

// Range is a discrete tick interval the vault supplies liquidity into.
// Amount0/Amount1 record the principal contributed to the underlying pool
// position and are reset whenever the position is fully burned.
type Range struct {
	LowerTick int             `json:"lower_tick"`
	UpperTick int             `json:"upper_tick"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Amount0   sdkmath.Int     `json:"amount_0"`
	Amount1   sdkmath.Int     `json:"amount_1"`
}

// NewRange builds an empty range for the given bounds.
func NewRange(lower, upper int) (Range, error) {
	if lower >= upper {
		return Range{}, fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidRangeBounds, lower, upper)
	}
	return Range{
		LowerTick: lower,
		UpperTick: upper,
		Liquidity: decimal.Zero,
		Amount0:   sdkmath.ZeroInt(),
		Amount1:   sdkmath.ZeroInt(),
	}, nil
}

// Key identifies a range by its bounds. No two active ranges may share a key.
func (r Range) Key() string {
	return fmt.Sprintf("%d:%d", r.LowerTick, r.UpperTick)
}

// ValidateRangeSet checks bounds, the duplicate rule and the range-count
// ceiling for a proposed set of ranges. It is called before any state
// mutation or external pool call.
func ValidateRangeSet(ranges []RangeBounds, maxRanges int) error {
	if len(ranges) > maxRanges {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRanges, len(ranges), maxRanges)
	}
	seen := make(map[string]struct{}, len(ranges))
	for _, rb := range ranges {
		if rb.LowerTick >= rb.UpperTick {
			return fmt.Errorf("%w: lower %d >= upper %d", ErrInvalidRangeBounds, rb.LowerTick, rb.UpperTick)
		}
		key := fmt.Sprintf("%d:%d", rb.LowerTick, rb.UpperTick)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRange, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RangeBounds is a bare (lower, upper) pair used when requesting a rebalance.
// The weight decides how much of the unused balances the range receives,
// relative to the other requested ranges.
type RangeBounds struct {
	LowerTick int             `json:"lower_tick"`
	UpperTick int             `json:"upper_tick"`
	Weight    decimal.Decimal `json:"weight"`
}

// AdjustKind defines the specific partial-rebalance operations.
type AdjustKind string

const (
	AdjustBurnRange AdjustKind = "BURN_RANGE" // Remove an existing range entirely
	AdjustMintRange AdjustKind = "MINT_RANGE" // Add liquidity to an existing range from unused balances
)

// AdjustEntry represents a single step of a partial rebalance. Ranges not
// named by any entry are left untouched.
type AdjustEntry struct {
	Kind      AdjustKind  `json:"kind"`
	LowerTick int         `json:"lower_tick"`
	UpperTick int         `json:"upper_tick"`
	Amount0   sdkmath.Int `json:"amount_0,omitempty"` // For MINT_RANGE: unused amount0 to deploy
	Amount1   sdkmath.Int `json:"amount_1,omitempty"` // For MINT_RANGE: unused amount1 to deploy
}

// SwapRequest describes the optional bounded swap executed during a full
// rebalance, routed through the external router after the deviation gate.
type SwapRequest struct {
	ZeroForOne bool        `json:"zero_for_one"` // true: sell asset0 for asset1
	AmountIn   sdkmath.Int `json:"amount_in"`
	MinOut     sdkmath.Int `json:"min_out"`
	Deadline   int64       `json:"deadline"` // unix seconds
}
