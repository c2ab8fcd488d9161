package univ3

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func requireClose(t *testing.T, want, got decimal.Decimal, tolerance string) {
	t.Helper()
	diff := want.Sub(got).Abs()
	require.True(t, diff.LessThanOrEqual(decimal.RequireFromString(tolerance)),
		"want %s, got %s (diff %s)", want.String(), got.String(), diff.String())
}

func TestTickToPriceZero(t *testing.T) {
	price, err := TickToPrice(0)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.New(1, 0)))
}

func TestTickToPriceSingleTick(t *testing.T) {
	price, err := TickToPrice(1)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("1.0001")))
}

func TestTickToPriceKnownValue(t *testing.T) {
	// 1.0001^6931 is just under 2.
	price, err := TickToPrice(6931)
	require.NoError(t, err)
	requireClose(t, decimal.RequireFromString("1.9999"), price, "0.001")
}

func TestTickToPriceNegativeIsReciprocal(t *testing.T) {
	pos, err := TickToPrice(1000)
	require.NoError(t, err)
	neg, err := TickToPrice(-1000)
	require.NoError(t, err)
	requireClose(t, decimal.New(1, 0), pos.Mul(neg), "0.0000000001")
}

func TestTickToPriceOutOfRange(t *testing.T) {
	_, err := TickToPrice(MaxTick + 1)
	require.ErrorIs(t, err, ErrTickOutOfRange)
	_, err = TickToPrice(MinTick - 1)
	require.ErrorIs(t, err, ErrTickOutOfRange)
}

func TestSqrt(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"4", "2"},
		{"1", "1"},
		{"2", "1.41421356237309504880"},
		{"0.25", "0.5"},
		{"1000000", "1000"},
	}
	for _, tc := range cases {
		got, err := Sqrt(decimal.RequireFromString(tc.in))
		require.NoError(t, err)
		requireClose(t, decimal.RequireFromString(tc.want), got, "0.00000000000001")
	}
}

func TestSqrtZero(t *testing.T) {
	got, err := Sqrt(decimal.Zero)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestSqrtNegative(t *testing.T) {
	_, err := Sqrt(decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrInvalidSqrtPrice)
}

func TestAmountsForLiquidityInRange(t *testing.T) {
	sqrtP := decimal.New(1, 0)
	sqrtA := decimal.RequireFromString("0.9")
	sqrtB := decimal.RequireFromString("1.1")
	liquidity := decimal.NewFromInt(1000)

	amount0, amount1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	require.NoError(t, err)

	// amount0 = L*(sqrtB-sqrtP)/(sqrtP*sqrtB), amount1 = L*(sqrtP-sqrtA)
	requireClose(t, decimal.RequireFromString("90.909090909090"), amount0, "0.000001")
	requireClose(t, decimal.RequireFromString("100"), amount1, "0.000001")
}

func TestAmountsForLiquidityBelowRange(t *testing.T) {
	amount0, amount1, err := AmountsForLiquidity(
		decimal.RequireFromString("0.8"),
		decimal.RequireFromString("0.9"),
		decimal.RequireFromString("1.1"),
		decimal.NewFromInt(1000),
	)
	require.NoError(t, err)
	require.True(t, amount0.IsPositive())
	require.True(t, amount1.IsZero())
}

func TestAmountsForLiquidityAboveRange(t *testing.T) {
	amount0, amount1, err := AmountsForLiquidity(
		decimal.RequireFromString("1.2"),
		decimal.RequireFromString("0.9"),
		decimal.RequireFromString("1.1"),
		decimal.NewFromInt(1000),
	)
	require.NoError(t, err)
	require.True(t, amount0.IsZero())
	require.True(t, amount1.IsPositive())
}

func TestAmountsForLiquidityInvalidBounds(t *testing.T) {
	_, _, err := AmountsForLiquidity(
		decimal.New(1, 0),
		decimal.RequireFromString("1.1"),
		decimal.RequireFromString("0.9"),
		decimal.NewFromInt(1),
	)
	require.ErrorIs(t, err, ErrInvalidSqrtPrice)
}

func TestLiquidityAmountsRoundTrip(t *testing.T) {
	sqrtP := decimal.New(1, 0)
	sqrtA := decimal.RequireFromString("0.9")
	sqrtB := decimal.RequireFromString("1.1")
	liquidity := decimal.NewFromInt(12345)

	amount0, amount1, err := AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	require.NoError(t, err)

	got, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1)
	require.NoError(t, err)
	requireClose(t, liquidity, got, "0.000001")
}

func TestLiquidityForAmountsTakesMinimum(t *testing.T) {
	sqrtP := decimal.New(1, 0)
	sqrtA := decimal.RequireFromString("0.9")
	sqrtB := decimal.RequireFromString("1.1")

	// With equal amounts the asset1 leg binds: l1 = 100/0.1 = 1000 while
	// l0 = 100*1*1.1/0.1 = 1100.
	base, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB,
		decimal.NewFromInt(100), decimal.NewFromInt(100))
	require.NoError(t, err)
	requireClose(t, decimal.NewFromInt(1000), base, "0.000001")

	// Doubling amount1 flips the binding side to asset0.
	moreOne, err := LiquidityForAmounts(sqrtP, sqrtA, sqrtB,
		decimal.NewFromInt(100), decimal.NewFromInt(200))
	require.NoError(t, err)
	requireClose(t, decimal.NewFromInt(1100), moreOne, "0.000001")
}

func TestSqrtPriceAtTickMatchesPrice(t *testing.T) {
	sqrtP, err := SqrtPriceAtTick(2000)
	require.NoError(t, err)
	price, err := TickToPrice(2000)
	require.NoError(t, err)
	requireClose(t, price, sqrtP.Mul(sqrtP), "0.0000000001")
}
