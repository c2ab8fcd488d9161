/*

This file contains the manager-configuration mutations. Operator transfer is
a two-step propose/accept handshake; every other mutation is operator-gated,
validated against the ceilings in types, and emits a ConfigEvent.

*/

package engine

import (
	"fmt"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/defiedge/rangevault/internal/types"
)

// ProposeOperator nominates a new operator. The nomination takes effect only
// when the nominee calls AcceptOperator; re-proposing overwrites a pending
// nomination and proposing the empty string cancels it.
func (v *Vault) ProposeOperator(caller, newOperator string) error {
	if err := v.enter("propose_operator"); err != nil {
		return err
	}
	defer v.exit()
	if err := v.authorize(caller, types.CapabilityOperator); err != nil {
		return err
	}
	old := v.cfg.PendingOperator
	v.cfg.PendingOperator = newOperator
	v.emitConfigEvent("pending_operator", old, newOperator, caller)
	return nil
}

// AcceptOperator completes the handshake. Only the pending operator may call.
func (v *Vault) AcceptOperator(caller string) error {
	if err := v.enter("accept_operator"); err != nil {
		return err
	}
	defer v.exit()
	if caller == "" || caller != v.cfg.PendingOperator {
		return fmt.Errorf("%w: %s", types.ErrNotPendingOperator, caller)
	}
	old := v.cfg.Operator
	v.cfg.Operator = caller
	v.cfg.PendingOperator = ""
	v.emitConfigEvent("operator", old, caller, caller)
	v.log.Info().
		Uint64("vaultId", uint64(v.id)).
		Str("operator", caller).
		Msg("Operator transfer completed")
	return nil
}

// SetFeeRecipient changes where claimed manager fee shares are credited.
func (v *Vault) SetFeeRecipient(caller, recipient string) error {
	return v.mutateConfig(caller, func() error {
		if recipient == "" {
			return fmt.Errorf("%w: fee recipient", types.ErrEmptyAddress)
		}
		old := v.cfg.FeeRecipient
		v.cfg.FeeRecipient = recipient
		v.emitConfigEvent("fee_recipient", old, recipient, caller)
		return nil
	})
}

// SetManagementFeeRate updates the mint-time skim rate (ppm-10M).
func (v *Vault) SetManagementFeeRate(caller string, rate int64) error {
	return v.mutateConfig(caller, func() error {
		if rate < 0 || rate > types.MaxManagementFeeRate {
			return fmt.Errorf("%w: management rate %d", types.ErrFeeRateTooHigh, rate)
		}
		old := v.cfg.ManagementFeeRate
		v.cfg.ManagementFeeRate = rate
		v.emitConfigEvent("management_fee_rate", formatInt64(old), formatInt64(rate), caller)
		return nil
	})
}

// SetPerformanceFeeRate updates the realized-fee cut (ppm-10M).
func (v *Vault) SetPerformanceFeeRate(caller string, rate int64) error {
	return v.mutateConfig(caller, func() error {
		if rate < 0 || rate > types.MaxPerformanceFeeRate {
			return fmt.Errorf("%w: performance rate %d", types.ErrFeeRateTooHigh, rate)
		}
		old := v.cfg.PerformanceFeeRate
		v.cfg.PerformanceFeeRate = rate
		v.emitConfigEvent("performance_fee_rate", formatInt64(old), formatInt64(rate), caller)
		return nil
	})
}

// SetDepositCeiling bounds the vault's total value in normalized asset1
// units. Zero removes the bound. Lowering the ceiling below the current
// value is allowed and only blocks further mints.
func (v *Vault) SetDepositCeiling(caller string, ceiling sdkmath.Int) error {
	return v.mutateConfig(caller, func() error {
		if ceiling.IsNil() || ceiling.IsNegative() {
			return fmt.Errorf("deposit ceiling cannot be negative")
		}
		old := v.cfg.DepositCeiling
		v.cfg.DepositCeiling = ceiling
		v.emitConfigEvent("deposit_ceiling", old.String(), ceiling.String(), caller)
		return nil
	})
}

// SetAllowedDeviations updates both deviation tolerances at once so the
// swap gate can never momentarily sit looser than the price gate.
func (v *Vault) SetAllowedDeviations(caller string, price, swap sdkmath.LegacyDec) error {
	return v.mutateConfig(caller, func() error {
		next := v.cfg
		next.AllowedDeviationPrice = price
		next.AllowedDeviationSwap = swap
		if err := next.Validate(); err != nil {
			return err
		}
		oldPrice := v.cfg.AllowedDeviationPrice
		oldSwap := v.cfg.AllowedDeviationSwap
		v.cfg.AllowedDeviationPrice = price
		v.cfg.AllowedDeviationSwap = swap
		v.emitConfigEvent("allowed_deviation_price", oldPrice.String(), price.String(), caller)
		v.emitConfigEvent("allowed_deviation_swap", oldSwap.String(), swap.String(), caller)
		return nil
	})
}

// SetMaxRanges updates the range-count cap. Lowering below the currently
// active count is allowed and only constrains future rebalances.
func (v *Vault) SetMaxRanges(caller string, maxRanges int) error {
	return v.mutateConfig(caller, func() error {
		if maxRanges < 1 || maxRanges > types.AbsoluteMaxRanges {
			return fmt.Errorf("%w: %d", types.ErrInvalidMaxRanges, maxRanges)
		}
		old := v.cfg.MaxRanges
		v.cfg.MaxRanges = maxRanges
		v.emitConfigEvent("max_ranges", strconv.Itoa(old), strconv.Itoa(maxRanges), caller)
		return nil
	})
}

// SetPrivacyMode toggles whitelist-only minting and burning.
func (v *Vault) SetPrivacyMode(caller string, enabled bool) error {
	return v.mutateConfig(caller, func() error {
		old := v.cfg.PrivacyMode
		v.cfg.PrivacyMode = enabled
		v.emitConfigEvent("privacy_mode", strconv.FormatBool(old), strconv.FormatBool(enabled), caller)
		return nil
	})
}

// SetWhitelisted adds or removes one address from the privacy-mode
// whitelist. Has no effect on access until privacy mode is enabled.
func (v *Vault) SetWhitelisted(caller, addr string, allowed bool) error {
	return v.mutateConfig(caller, func() error {
		if addr == "" {
			return fmt.Errorf("%w: whitelist entry", types.ErrEmptyAddress)
		}
		if v.cfg.Whitelist == nil {
			v.cfg.Whitelist = make(map[string]bool)
		}
		old := v.cfg.Whitelist[addr]
		if allowed {
			v.cfg.Whitelist[addr] = true
		} else {
			delete(v.cfg.Whitelist, addr)
		}
		v.emitConfigEvent("whitelist:"+addr, strconv.FormatBool(old), strconv.FormatBool(allowed), caller)
		return nil
	})
}

// mutateConfig wraps a single-field mutation with the guard, operator check
// and rollback-on-error, so each setter states only its own validation.
func (v *Vault) mutateConfig(caller string, apply func() error) (err error) {
	if err = v.enter("config"); err != nil {
		return err
	}
	defer v.exit()

	snap := v.backup()
	defer func() {
		if err != nil {
			v.restore(snap)
		}
	}()

	if err = v.authorize(caller, types.CapabilityOperator); err != nil {
		return err
	}
	return apply()
}

func (v *Vault) emitConfigEvent(field, oldValue, newValue, changedBy string) {
	v.recordConfigEvent(types.ConfigEvent{
		VaultID:   v.id,
		Timestamp: v.clock(),
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: changedBy,
	})
	v.log.Info().
		Uint64("vaultId", uint64(v.id)).
		Str("field", field).
		Str("old", oldValue).
		Str("new", newValue).
		Msg("Manager config updated")
}

func formatInt64(n int64) string { return strconv.FormatInt(n, 10) }
