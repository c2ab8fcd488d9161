/*

This file contains the share accounting engine: converting two-asset
contributions and withdrawals into the common value unit (asset1, 18
decimals) and minting/burning shares so that share value is invariant
across deposits.

*/

package engine

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/defiedge/rangevault/internal/types"
	"github.com/defiedge/rangevault/internal/utils"
)

// attoFactor converts 18-decimal human-unit values to integer share counts.
var attoFactor = sdkmath.LegacyNewDec(10).Power(18)

// IssueShares computes how many shares a contribution mints. Amounts are
// normalized (18-decimal human units); price is asset1 per asset0.
//
// On the first deposit shares seed to max(contribution0*price, contribution1)
// so the unit price starts at 1; either contribution being zero at seed time
// is disallowed. Afterwards shares follow the current holdings ratio so
// neither asset can be front-run into an outsized minority valuation.
func IssueShares(contribution0, contribution1, totalHeld0, totalHeld1 sdkmath.LegacyDec, totalShares sdkmath.Int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	if contribution0.IsNil() || contribution1.IsNil() || contribution0.IsNegative() || contribution1.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: negative or nil contribution", ErrInsufficientAmount)
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.Int{}, errors.New("price must be positive")
	}

	if totalShares.IsZero() {
		if contribution0.IsZero() || contribution1.IsZero() {
			return sdkmath.Int{}, fmt.Errorf("%w: both assets are required to seed the vault", ErrInsufficientAmount)
		}
		value0 := contribution0.Mul(price)
		seed := value0
		if contribution1.GT(seed) {
			seed = contribution1
		}
		return seed.Mul(attoFactor).TruncateInt(), nil
	}

	if contribution0.IsZero() && contribution1.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: zero contribution", ErrInsufficientAmount)
	}

	contributionValue := contribution0.Mul(price).Add(contribution1)
	heldValue := totalHeld0.Mul(price).Add(totalHeld1)
	if !heldValue.IsPositive() {
		return sdkmath.Int{}, errors.New("held value must be positive when shares exist")
	}
	shares := sdkmath.LegacyNewDecFromInt(totalShares).Mul(contributionValue).Quo(heldValue)
	return shares.TruncateInt(), nil
}

// GetOptimalAmounts clamps a desired contribution pair to the vault's
// current holding ratio. One side is taken at its desired value and the
// other computed pro-rata; caller-specified minimums are enforced on the
// computed side. With zero holdings both desired amounts pass through.
func GetOptimalAmounts(desired0, desired1, min0, min1, totalHeld0, totalHeld1 sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	for _, amt := range []sdkmath.Int{desired0, desired1, min0, min1, totalHeld0, totalHeld1} {
		if amt.IsNil() || amt.IsNegative() {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: nil or negative input", ErrInsufficientAmount)
		}
	}

	if totalHeld0.IsZero() && totalHeld1.IsZero() {
		return desired0, desired1, nil
	}

	if totalHeld1.IsZero() {
		// Holdings are entirely asset0.
		if min1.IsPositive() {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: holdings carry no asset1", ErrInsufficientAmount1)
		}
		if desired0.LT(min0) {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount0, desired0.String(), min0.String())
		}
		return desired0, sdkmath.ZeroInt(), nil
	}
	if totalHeld0.IsZero() {
		if min0.IsPositive() {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: holdings carry no asset0", ErrInsufficientAmount0)
		}
		if desired1.LT(min1) {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount1, desired1.String(), min1.String())
		}
		return sdkmath.ZeroInt(), desired1, nil
	}

	// Take desired0 in full and compute the matching amount1.
	amount1 := desired0.Mul(totalHeld1).Quo(totalHeld0)
	if amount1.LTE(desired1) {
		if amount1.LT(min1) {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount1, amount1.String(), min1.String())
		}
		if desired0.LT(min0) {
			return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount0, desired0.String(), min0.String())
		}
		return desired0, amount1, nil
	}

	// desired1 binds; compute the matching amount0.
	amount0 := desired1.Mul(totalHeld0).Quo(totalHeld1)
	if amount0.LT(min0) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount0, amount0.String(), min0.String())
	}
	if desired1.LT(min1) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrInsufficientAmount1, desired1.String(), min1.String())
	}
	return amount0, desired1, nil
}

// RedeemShares computes the pro-rata withdrawal amounts for sharesIn out of
// totalShares, flooring so no caller can extract more value than entitled.
func RedeemShares(sharesIn, totalShares, totalHeld0, totalHeld1 sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if sharesIn.IsNil() || !sharesIn.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: shares must be positive", ErrInsufficientBalance)
	}
	if totalShares.IsNil() || !totalShares.IsPositive() || sharesIn.GT(totalShares) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s shares of %s total", ErrInsufficientBalance, sharesIn.String(), totalShares.String())
	}
	out0 := totalHeld0.Mul(sharesIn).Quo(totalShares)
	out1 := totalHeld1.Mul(sharesIn).Quo(totalShares)
	return out0, out1, nil
}

// Mint deposits up to the desired amounts (clamped to the holding ratio) and
// issues shares. Funds join the unused balances and, when the vault is
// active, are deployed into the current ranges pro-rata by range value.
func (v *Vault) Mint(caller string, desired0, desired1, min0, min1, shareMin sdkmath.Int) (sharesOut sdkmath.Int, err error) {
	if err = v.enter("mint"); err != nil {
		return sdkmath.Int{}, err
	}
	defer v.exit()

	snap := v.backup()
	defer func() {
		if err != nil {
			v.restore(snap)
		}
	}()

	required := types.CapabilityPublic
	if v.cfg.PrivacyMode {
		required = types.CapabilityWhitelisted
	}
	if err = v.authorize(caller, required); err != nil {
		return sdkmath.Int{}, err
	}
	if shareMin.IsNil() || shareMin.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: negative share minimum", ErrSlippageExceeded)
	}

	held0, held1 := v.state.TotalHeld()
	amount0, amount1, err := GetOptimalAmounts(desired0, desired1, min0, min1, held0, held1)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amount0.IsZero() && amount1.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: nothing to deposit", ErrInsufficientAmount)
	}

	price, err := v.prices.PriceOf(v.pool, v.pair)
	if err != nil {
		return sdkmath.Int{}, err
	}

	c0n, err := v.prices.Normalize(v.pair.Asset0, amount0)
	if err != nil {
		return sdkmath.Int{}, err
	}
	c1n, err := v.prices.Normalize(v.pair.Asset1, amount1)
	if err != nil {
		return sdkmath.Int{}, err
	}
	held0n, err := v.prices.Normalize(v.pair.Asset0, held0)
	if err != nil {
		return sdkmath.Int{}, err
	}
	held1n, err := v.prices.Normalize(v.pair.Asset1, held1)
	if err != nil {
		return sdkmath.Int{}, err
	}

	sharesOut, err = IssueShares(c0n, c1n, held0n, held1n, v.state.TotalShares, price)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if sharesOut.LT(shareMin) {
		return sdkmath.Int{}, fmt.Errorf("%w: %s shares < %s", ErrSlippageExceeded, sharesOut.String(), shareMin.String())
	}

	if v.cfg.DepositCeiling.IsPositive() {
		newValue := held0n.Add(c0n).Mul(price).Add(held1n).Add(c1n)
		if newValue.Mul(attoFactor).TruncateInt().GT(v.cfg.DepositCeiling) {
			return sdkmath.Int{}, fmt.Errorf("%w: value %s", ErrDepositCeiling, newValue.String())
		}
	}

	// Mint-time management fee skim: a fixed percentage of the newly issued
	// shares accrues to the fee recipient, diluting existing holders.
	feeShares := sharesOut.MulRaw(v.cfg.ManagementFeeRate).QuoRaw(types.RateDenominator)

	v.state.UnusedAmount0 = v.state.UnusedAmount0.Add(amount0)
	v.state.UnusedAmount1 = v.state.UnusedAmount1.Add(amount1)

	// While idle, contributions stay in unused balances until an explicit
	// redeploy; no range is created by a mint.
	if !v.state.Idle && len(v.state.ActiveRanges) > 0 {
		if err = v.deployProportional(amount0, amount1, price); err != nil {
			return sdkmath.Int{}, err
		}
	}

	v.state.TotalShares = v.state.TotalShares.Add(sharesOut).Add(feeShares)
	v.state.AccManagementFeeShares = v.state.AccManagementFeeShares.Add(feeShares)
	v.balances[caller] = v.BalanceOf(caller).Add(sharesOut)

	v.log.Info().
		Uint64("vaultId", uint64(v.id)).
		Str("caller", caller).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Str("shares", sharesOut.String()).
		Str("managementFeeShares", feeShares.String()).
		Msg("Mint executed")
	return sharesOut, nil
}

// Burn redeems sharesIn for a pro-rata slice of everything the vault holds.
// Owed trading fees are pulled and the performance fee crystallized before
// any range principal is released.
func (v *Vault) Burn(caller string, sharesIn, min0, min1 sdkmath.Int) (out0, out1 sdkmath.Int, err error) {
	if err = v.enter("burn"); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	defer v.exit()

	snap := v.backup()
	defer func() {
		if err != nil {
			v.restore(snap)
		}
	}()

	required := types.CapabilityPublic
	if v.cfg.PrivacyMode {
		required = types.CapabilityWhitelisted
	}
	if err = v.authorize(caller, required); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if sharesIn.IsNil() || !sharesIn.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: shares must be positive", ErrInsufficientBalance)
	}
	if v.BalanceOf(caller).LT(sharesIn) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: caller holds %s shares", ErrInsufficientBalance, v.BalanceOf(caller).String())
	}
	if min0.IsNil() || min0.IsNegative() || min1.IsNil() || min1.IsNegative() {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: negative minimum", ErrSlippageExceeded)
	}

	supply := v.state.TotalShares
	held0, held1 := v.state.TotalHeld()
	out0, out1, err = RedeemShares(sharesIn, supply, held0, held1)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	if err = v.withdrawFromRanges(sharesIn, supply); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	// Floor rounding in the pool burn can leave unused a unit short of the
	// entitlement; never pay out more than the vault actually holds.
	if out0.GT(v.state.UnusedAmount0) {
		out0 = v.state.UnusedAmount0
	}
	if out1.GT(v.state.UnusedAmount1) {
		out1 = v.state.UnusedAmount1
	}
	if out0.LT(min0) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: amount0 %s < %s", ErrSlippageExceeded, out0.String(), min0.String())
	}
	if out1.LT(min1) {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: amount1 %s < %s", ErrSlippageExceeded, out1.String(), min1.String())
	}

	v.state.UnusedAmount0 = v.state.UnusedAmount0.Sub(out0)
	v.state.UnusedAmount1 = v.state.UnusedAmount1.Sub(out1)
	v.state.TotalShares = v.state.TotalShares.Sub(sharesIn)
	remaining := v.BalanceOf(caller).Sub(sharesIn)
	if remaining.IsZero() {
		delete(v.balances, caller)
	} else {
		v.balances[caller] = remaining
	}

	v.log.Info().
		Uint64("vaultId", uint64(v.id)).
		Str("caller", caller).
		Str("shares", sharesIn.String()).
		Str("amount0", out0.String()).
		Str("amount1", out1.String()).
		Msg("Burn executed")
	return out0, out1, nil
}

// withdrawFromRanges burns sharesIn/supply of every active range's
// liquidity into the unused balances, pulling owed fees first. A full burn
// removes every range and leaves the vault idle.
func (v *Vault) withdrawFromRanges(sharesIn, supply sdkmath.Int) error {
	if len(v.state.ActiveRanges) == 0 {
		return nil
	}
	fullBurn := sharesIn.Equal(supply)

	sharesDec, err := utils.SDKIntToDecimal(sharesIn)
	if err != nil {
		return err
	}
	supplyDec, err := utils.SDKIntToDecimal(supply)
	if err != nil {
		return err
	}

	for i := range v.state.ActiveRanges {
		r := &v.state.ActiveRanges[i]

		if _, _, err := v.collectAndCrystallize(r.LowerTick, r.UpperTick); err != nil {
			return err
		}

		burnLiq := r.Liquidity.Mul(sharesDec).DivRound(supplyDec, 40)
		if fullBurn || burnLiq.GreaterThan(r.Liquidity) {
			burnLiq = r.Liquidity
		}
		if burnLiq.Sign() <= 0 {
			continue
		}
		got0, got1, err := v.pool.BurnRange(r.LowerTick, r.UpperTick, burnLiq)
		if err != nil {
			return err
		}
		v.state.UnusedAmount0 = v.state.UnusedAmount0.Add(got0)
		v.state.UnusedAmount1 = v.state.UnusedAmount1.Add(got1)

		r.Liquidity = r.Liquidity.Sub(burnLiq)
		if fullBurn {
			r.Amount0 = sdkmath.ZeroInt()
			r.Amount1 = sdkmath.ZeroInt()
		} else {
			r.Amount0 = r.Amount0.Sub(r.Amount0.Mul(sharesIn).Quo(supply))
			r.Amount1 = r.Amount1.Sub(r.Amount1.Mul(sharesIn).Quo(supply))
		}
	}

	if fullBurn {
		v.state.ActiveRanges = nil
		v.state.Idle = true
	}
	return nil
}
