package engine

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/defiedge/rangevault/internal/types"
)

func feeHarness(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, func(cfg *types.ManagerConfig) {
		cfg.PerformanceFeeRate = 2_000_000 // 20%
	})
}

func TestPerformanceFeeCrystallizesOnCollect(t *testing.T) {
	h := feeHarness(t)
	h.seedVault(t)
	h.deploySingleRange(t)

	sharesBefore := h.vault.TotalShares()
	fee1 := atto(1).QuoRaw(1000)
	require.NoError(t, h.pool.AccrueFees(-600, 600, sdkmath.ZeroInt(), fee1))

	// Hold tears the range down, which pulls the owed fees and
	// crystallizes the performance cut.
	require.NoError(t, h.vault.Hold(testOperator))

	state := h.vault.State()
	total := state.AccPerformanceFeeShares.Add(state.AccProtocolFeeShares)
	require.True(t, total.IsPositive())
	// The protocol takes a tenth of the crystallized shares.
	require.True(t, state.AccProtocolFeeShares.Equal(total.QuoRaw(10)))
	require.True(t, state.TotalShares.Equal(sharesBefore.Add(total)))

	// Crystallized shares dilute holders; the collected fee itself sits
	// in the unused balances.
	require.True(t, state.UnusedAmount1.GT(atto(1)))
	require.Len(t, h.rec.rebalances, 2)
	require.True(t, h.rec.rebalances[1].FeesCollected1.Equal(fee1))
}

func TestPerformanceFeeZeroRateAccruesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.seedVault(t)
	h.deploySingleRange(t)

	require.NoError(t, h.pool.AccrueFees(-600, 600, sdkmath.ZeroInt(), atto(1).QuoRaw(1000)))
	require.NoError(t, h.vault.Hold(testOperator))

	state := h.vault.State()
	require.True(t, state.AccPerformanceFeeShares.IsZero())
	require.True(t, state.AccProtocolFeeShares.IsZero())
}

func TestClaimFeeAssignsBalances(t *testing.T) {
	h := feeHarness(t)
	h.seedVault(t)
	h.deploySingleRange(t)
	require.NoError(t, h.pool.AccrueFees(-600, 600, sdkmath.ZeroInt(), atto(1).QuoRaw(1000)))
	require.NoError(t, h.vault.Hold(testOperator))

	state := h.vault.State()
	perf := state.AccPerformanceFeeShares
	proto := state.AccProtocolFeeShares
	require.True(t, perf.IsPositive())

	require.NoError(t, h.vault.ClaimFee(testOperator))

	require.True(t, h.vault.BalanceOf(testFeeRecipient).Equal(perf))
	require.True(t, h.vault.BalanceOf(testProtocolRecipient).Equal(proto))

	state = h.vault.State()
	require.True(t, state.AccManagementFeeShares.IsZero())
	require.True(t, state.AccPerformanceFeeShares.IsZero())
	require.True(t, state.AccProtocolFeeShares.IsZero())

	require.Len(t, h.rec.claims, 1)
	claim := h.rec.claims[0]
	require.True(t, claim.PerformanceShares.Equal(perf))
	require.True(t, claim.ProtocolShares.Equal(proto))
	require.Equal(t, testFeeRecipient, claim.FeeRecipient)
	require.Equal(t, testProtocolRecipient, claim.ProtocolRecipient)
}

func TestClaimFeeManagementAccrual(t *testing.T) {
	h := newHarness(t, func(cfg *types.ManagerConfig) {
		cfg.ManagementFeeRate = 50_000 // 0.5%
	})
	shares := h.seedVault(t)
	mgmt := shares.MulRaw(50_000).QuoRaw(types.RateDenominator)

	require.NoError(t, h.vault.ClaimFee(testOperator))
	require.True(t, h.vault.BalanceOf(testFeeRecipient).Equal(mgmt))
	require.True(t, h.vault.State().AccManagementFeeShares.IsZero())
	require.Len(t, h.rec.claims, 1)
	require.True(t, h.rec.claims[0].ManagementShares.Equal(mgmt))
}

func TestClaimFeeNothingAccruedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.seedVault(t)

	require.NoError(t, h.vault.ClaimFee(testOperator))
	require.Empty(t, h.rec.claims)
	require.True(t, h.vault.BalanceOf(testFeeRecipient).IsZero())
}

func TestClaimFeeRequiresOperator(t *testing.T) {
	h := newHarness(t, nil)
	h.seedVault(t)

	require.ErrorIs(t, h.vault.ClaimFee(testDepositor), ErrNotOperator)
}
