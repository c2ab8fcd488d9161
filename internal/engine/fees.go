/*

This file contains fee accrual and settlement. The management fee is skimmed
as shares at mint time (shares.go); the performance fee crystallizes here,
whenever swap fees are pulled out of a range, as newly minted shares worth
the configured cut of the collected fee value. Accrued fee shares sit in the
counters and join the supply immediately; ClaimFee only assigns them to the
recipients' balances.

*/

package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/defiedge/rangevault/internal/types"
)

// collectAndCrystallize pulls the owed swap fees of one range into the
// unused balances and mints the performance-fee share cut. Returns the
// collected fee amounts. Management fee accrual (already minted) settles
// before performance when both are claimed, so the counters stay separate.
func (v *Vault) collectAndCrystallize(lower, upper int) (sdkmath.Int, sdkmath.Int, error) {
	fee0, fee1, err := v.pool.CollectOwed(lower, upper)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if fee0.IsZero() && fee1.IsZero() {
		return fee0, fee1, nil
	}

	v.state.UnusedAmount0 = v.state.UnusedAmount0.Add(fee0)
	v.state.UnusedAmount1 = v.state.UnusedAmount1.Add(fee1)

	if v.cfg.PerformanceFeeRate == 0 || v.state.TotalShares.IsZero() {
		return fee0, fee1, nil
	}

	price, err := v.prices.PriceOf(v.pool, v.pair)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	feeValue, err := v.heldValue(fee0, fee1, price)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	held0, held1 := v.state.TotalHeld()
	totalValue, err := v.heldValue(held0, held1, price)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if !totalValue.IsPositive() {
		return fee0, fee1, nil
	}

	perfValue := feeValue.MulInt64(v.cfg.PerformanceFeeRate).QuoInt64(types.RateDenominator)
	feeShares := perfValue.MulInt(v.state.TotalShares).Quo(totalValue).TruncateInt()
	if feeShares.IsZero() {
		return fee0, fee1, nil
	}

	protocolShares := feeShares.MulRaw(types.DefaultProtocolFeeFactor).QuoRaw(types.RateDenominator)
	managerShares := feeShares.Sub(protocolShares)

	v.state.AccPerformanceFeeShares = v.state.AccPerformanceFeeShares.Add(managerShares)
	v.state.AccProtocolFeeShares = v.state.AccProtocolFeeShares.Add(protocolShares)
	v.state.TotalShares = v.state.TotalShares.Add(feeShares)

	v.log.Debug().
		Uint64("vaultId", uint64(v.id)).
		Str("fee0", fee0.String()).
		Str("fee1", fee1.String()).
		Str("performanceShares", feeShares.String()).
		Msg("Performance fee crystallized")
	return fee0, fee1, nil
}

// heldValue prices a pair of raw amounts in normalized asset1 units.
func (v *Vault) heldValue(amount0, amount1 sdkmath.Int, price sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	a0n, err := v.prices.Normalize(v.pair.Asset0, amount0)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	a1n, err := v.prices.Normalize(v.pair.Asset1, amount1)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return a0n.Mul(price).Add(a1n), nil
}

// ClaimFee moves the accrued fee shares into the recipients' share
// balances, management before performance, and zeroes the counters.
// A claim with nothing accrued is a no-op.
func (v *Vault) ClaimFee(caller string) (err error) {
	if err = v.enter("claim_fee"); err != nil {
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

	mgmt := v.state.AccManagementFeeShares
	perf := v.state.AccPerformanceFeeShares
	proto := v.state.AccProtocolFeeShares
	if mgmt.IsZero() && perf.IsZero() && proto.IsZero() {
		return nil
	}

	if v.cfg.FeeRecipient == "" && (!mgmt.IsZero() || !perf.IsZero()) {
		return fmt.Errorf("%w: fee recipient unset", ErrVaultMisconfigured)
	}
	protocolRecipient := v.reg.ProtocolFeeRecipient()
	if protocolRecipient == "" && !proto.IsZero() {
		return fmt.Errorf("%w: protocol fee recipient unset", ErrVaultMisconfigured)
	}

	v.creditShares(v.cfg.FeeRecipient, mgmt)
	v.creditShares(v.cfg.FeeRecipient, perf)
	v.creditShares(protocolRecipient, proto)

	v.state.AccManagementFeeShares = sdkmath.ZeroInt()
	v.state.AccPerformanceFeeShares = sdkmath.ZeroInt()
	v.state.AccProtocolFeeShares = sdkmath.ZeroInt()

	v.recordFeeClaim(types.FeeClaim{
		VaultID:           v.id,
		Timestamp:         v.clock(),
		ManagementShares:  mgmt,
		PerformanceShares: perf,
		ProtocolShares:    proto,
		FeeRecipient:      v.cfg.FeeRecipient,
		ProtocolRecipient: protocolRecipient,
	})

	v.log.Info().
		Uint64("vaultId", uint64(v.id)).
		Str("managementShares", mgmt.String()).
		Str("performanceShares", perf.String()).
		Str("protocolShares", proto.String()).
		Msg("Fee shares claimed")
	return nil
}

func (v *Vault) creditShares(addr string, amount sdkmath.Int) {
	if amount.IsZero() {
		return
	}
	v.balances[addr] = v.BalanceOf(addr).Add(amount)
}
