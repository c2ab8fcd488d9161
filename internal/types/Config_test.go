package types

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func validConfig() ManagerConfig {
	return ManagerConfig{
		Operator:              "operator",
		FeeRecipient:          "fee-recipient",
		ManagementFeeRate:     50_000,
		PerformanceFeeRate:    1_000_000,
		DepositCeiling:        sdkmath.ZeroInt(),
		AllowedDeviationPrice: sdkmath.LegacyNewDecWithPrec(1, 2),
		AllowedDeviationSwap:  sdkmath.LegacyNewDecWithPrec(5, 3),
		MaxRanges:             DefaultMaxRanges,
	}
}

func TestManagerConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Operator = ""
	require.ErrorIs(t, cfg.Validate(), ErrEmptyAddress)

	cfg = validConfig()
	cfg.FeeRecipient = ""
	require.ErrorIs(t, cfg.Validate(), ErrEmptyAddress)

	cfg = validConfig()
	cfg.ManagementFeeRate = MaxManagementFeeRate + 1
	require.ErrorIs(t, cfg.Validate(), ErrFeeRateTooHigh)

	cfg = validConfig()
	cfg.PerformanceFeeRate = -1
	require.ErrorIs(t, cfg.Validate(), ErrFeeRateTooHigh)

	cfg = validConfig()
	cfg.MaxRanges = AbsoluteMaxRanges + 1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidMaxRanges)

	cfg = validConfig()
	cfg.AllowedDeviationPrice = sdkmath.LegacyOneDec()
	require.ErrorIs(t, cfg.Validate(), ErrInvalidDeviation)

	cfg = validConfig()
	cfg.DepositCeiling = sdkmath.NewInt(-1)
	require.Error(t, cfg.Validate())
}

func TestIsWhitelisted(t *testing.T) {
	cfg := validConfig()
	require.True(t, cfg.IsWhitelisted("anyone"))

	cfg.PrivacyMode = true
	cfg.Whitelist = map[string]bool{"alice": true}
	require.True(t, cfg.IsWhitelisted("alice"))
	require.False(t, cfg.IsWhitelisted("bob"))
}

func TestValidateRangeSet(t *testing.T) {
	ranges := []RangeBounds{
		{LowerTick: -600, UpperTick: 600},
		{LowerTick: -1200, UpperTick: 1200},
	}
	require.NoError(t, ValidateRangeSet(ranges, 5))
	require.ErrorIs(t, ValidateRangeSet(ranges, 1), ErrTooManyRanges)

	dup := append(ranges, RangeBounds{LowerTick: -600, UpperTick: 600})
	require.ErrorIs(t, ValidateRangeSet(dup, 5), ErrDuplicateRange)

	inverted := []RangeBounds{{LowerTick: 600, UpperTick: -600}}
	require.ErrorIs(t, ValidateRangeSet(inverted, 5), ErrInvalidRangeBounds)

	empty := []RangeBounds{{LowerTick: 60, UpperTick: 60}}
	require.ErrorIs(t, ValidateRangeSet(empty, 5), ErrInvalidRangeBounds)
}
