/*

This file contains the durable per-vault state: the active range set, unused
balances, the share ledger and the fee accrual counters.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// VaultState holds everything a vault owns. Invariants:
//   - TotalShares is zero iff the vault holds no depositor value
//   - Idle == true implies ActiveRanges is empty
type VaultState struct {
	TotalShares  sdkmath.Int `json:"total_shares"`
	Idle         bool        `json:"idle"`
	ActiveRanges []Range     `json:"active_ranges"`

	// Balances held by the vault but not deployed into any range,
	// in each asset's native decimals.
	UnusedAmount0 sdkmath.Int `json:"unused_amount_0"`
	UnusedAmount1 sdkmath.Int `json:"unused_amount_1"`

	// Fee accruals, settled by ClaimFee.
	AccManagementFeeShares  sdkmath.Int `json:"acc_management_fee_shares"`
	AccPerformanceFeeShares sdkmath.Int `json:"acc_performance_fee_shares"`
	AccProtocolFeeShares    sdkmath.Int `json:"acc_protocol_fee_shares"`
}

// NewVaultState returns an empty idle state.
func NewVaultState() VaultState {
	return VaultState{
		TotalShares:             sdkmath.ZeroInt(),
		Idle:                    true,
		ActiveRanges:            nil,
		UnusedAmount0:           sdkmath.ZeroInt(),
		UnusedAmount1:           sdkmath.ZeroInt(),
		AccManagementFeeShares:  sdkmath.ZeroInt(),
		AccPerformanceFeeShares: sdkmath.ZeroInt(),
		AccProtocolFeeShares:    sdkmath.ZeroInt(),
	}
}

// RangeIndex returns the index of the active range with the given bounds,
// or -1 when no such range exists.
func (s *VaultState) RangeIndex(lower, upper int) int {
	for i, r := range s.ActiveRanges {
		if r.LowerTick == lower && r.UpperTick == upper {
			return i
		}
	}
	return -1
}

// TotalHeld sums deployed principal and unused balances per asset,
// in native decimals.
func (s *VaultState) TotalHeld() (sdkmath.Int, sdkmath.Int) {
	total0 := s.UnusedAmount0
	total1 := s.UnusedAmount1
	for _, r := range s.ActiveRanges {
		total0 = total0.Add(r.Amount0)
		total1 = total1.Add(r.Amount1)
	}
	return total0, total1
}
