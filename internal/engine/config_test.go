package engine

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/defiedge/rangevault/internal/types"
)

func TestOperatorHandshake(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.ProposeOperator(testOperator, "bob"))
	require.Equal(t, "bob", h.vault.ManagerConfig().PendingOperator)

	// Proposing does not transfer anything yet.
	require.Equal(t, testOperator, h.vault.ManagerConfig().Operator)

	require.NoError(t, h.vault.AcceptOperator("bob"))
	cfg := h.vault.ManagerConfig()
	require.Equal(t, "bob", cfg.Operator)
	require.Empty(t, cfg.PendingOperator)

	// The old operator lost its capability.
	require.ErrorIs(t, h.vault.Hold(testOperator), ErrNotOperator)
	require.NoError(t, h.vault.Hold("bob"))
}

func TestAcceptOperatorWrongCaller(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.ProposeOperator(testOperator, "bob"))
	require.ErrorIs(t, h.vault.AcceptOperator("mallory"), types.ErrNotPendingOperator)
	require.Equal(t, testOperator, h.vault.ManagerConfig().Operator)
}

func TestProposeOperatorOverwriteAndCancel(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.ProposeOperator(testOperator, "bob"))
	require.NoError(t, h.vault.ProposeOperator(testOperator, "carol"))
	require.Equal(t, "carol", h.vault.ManagerConfig().PendingOperator)

	// Bob's stale proposal no longer works.
	require.ErrorIs(t, h.vault.AcceptOperator("bob"), types.ErrNotPendingOperator)

	// An empty proposal cancels the handshake.
	require.NoError(t, h.vault.ProposeOperator(testOperator, ""))
	require.ErrorIs(t, h.vault.AcceptOperator("carol"), types.ErrNotPendingOperator)
}

func TestSetFeeRateCeilings(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.SetManagementFeeRate(testOperator, types.MaxManagementFeeRate))
	require.ErrorIs(t, h.vault.SetManagementFeeRate(testOperator, types.MaxManagementFeeRate+1), types.ErrFeeRateTooHigh)

	require.NoError(t, h.vault.SetPerformanceFeeRate(testOperator, types.MaxPerformanceFeeRate))
	require.ErrorIs(t, h.vault.SetPerformanceFeeRate(testOperator, types.MaxPerformanceFeeRate+1), types.ErrFeeRateTooHigh)

	cfg := h.vault.ManagerConfig()
	require.Equal(t, int64(types.MaxManagementFeeRate), cfg.ManagementFeeRate)
	require.Equal(t, int64(types.MaxPerformanceFeeRate), cfg.PerformanceFeeRate)
}

func TestSetAllowedDeviations(t *testing.T) {
	h := newHarness(t, nil)

	price, err := sdkmath.LegacyNewDecFromStr("0.02")
	require.NoError(t, err)
	swap, err := sdkmath.LegacyNewDecFromStr("0.01")
	require.NoError(t, err)
	require.NoError(t, h.vault.SetAllowedDeviations(testOperator, price, swap))

	cfg := h.vault.ManagerConfig()
	require.True(t, cfg.AllowedDeviationPrice.Equal(price))
	require.True(t, cfg.AllowedDeviationSwap.Equal(swap))

	// A deviation of one or more is rejected, config untouched.
	err = h.vault.SetAllowedDeviations(testOperator, sdkmath.LegacyOneDec(), swap)
	require.ErrorIs(t, err, types.ErrInvalidDeviation)
	require.True(t, h.vault.ManagerConfig().AllowedDeviationPrice.Equal(price))
}

func TestSetDepositCeiling(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.SetDepositCeiling(testOperator, atto(100)))
	require.True(t, h.vault.ManagerConfig().DepositCeiling.Equal(atto(100)))

	require.Error(t, h.vault.SetDepositCeiling(testOperator, sdkmath.NewInt(-1)))
	require.Error(t, h.vault.SetDepositCeiling(testOperator, sdkmath.Int{}))
}

func TestSetMaxRangesBounds(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.SetMaxRanges(testOperator, types.AbsoluteMaxRanges))
	require.ErrorIs(t, h.vault.SetMaxRanges(testOperator, 0), types.ErrInvalidMaxRanges)
	require.ErrorIs(t, h.vault.SetMaxRanges(testOperator, types.AbsoluteMaxRanges+1), types.ErrInvalidMaxRanges)
}

func TestWhitelistLifecycle(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.SetPrivacyMode(testOperator, true))
	require.NoError(t, h.vault.SetWhitelisted(testOperator, "bob", true))

	_, err := h.vault.Mint("bob", atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)

	require.NoError(t, h.vault.SetWhitelisted(testOperator, "bob", false))
	_, err = h.vault.Mint("bob", atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrUnauthorized)

	// Removal deletes the entry rather than storing false.
	require.NotContains(t, h.vault.ManagerConfig().Whitelist, "bob")
}

func TestConfigEventsEmitted(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.vault.SetManagementFeeRate(testOperator, 100_000))
	require.NoError(t, h.vault.SetFeeRecipient(testOperator, "treasury"))

	require.Len(t, h.rec.events, 2)
	require.Equal(t, "management_fee_rate", h.rec.events[0].Field)
	require.Equal(t, "0", h.rec.events[0].OldValue)
	require.Equal(t, "100000", h.rec.events[0].NewValue)
	require.Equal(t, testOperator, h.rec.events[0].ChangedBy)
	require.Equal(t, "fee_recipient", h.rec.events[1].Field)
	require.Equal(t, testFeeRecipient, h.rec.events[1].OldValue)
	require.Equal(t, "treasury", h.rec.events[1].NewValue)
}

func TestConfigMutationsRequireOperator(t *testing.T) {
	h := newHarness(t, nil)

	require.ErrorIs(t, h.vault.ProposeOperator("mallory", "mallory"), ErrNotOperator)
	require.ErrorIs(t, h.vault.SetManagementFeeRate("mallory", 1), ErrNotOperator)
	require.ErrorIs(t, h.vault.SetPrivacyMode("mallory", true), ErrNotOperator)
	require.ErrorIs(t, h.vault.SetWhitelisted("mallory", "mallory", true), ErrNotOperator)
	require.Empty(t, h.rec.events)
}
