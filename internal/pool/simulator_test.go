package pool

import (
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/defiedge/rangevault/internal/univ3"
)

// fakeClock is an adjustable time source shared between the pool and tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// acceptAllCallback fulfills every settlement request and records it.
type acceptAllCallback struct {
	poolID  string
	amount0 sdkmath.Int
	amount1 sdkmath.Int
	calls   int
}

func (cb *acceptAllCallback) Fulfill(poolID string, amount0, amount1 sdkmath.Int) error {
	cb.poolID = poolID
	cb.amount0 = amount0
	cb.amount1 = amount1
	cb.calls++
	return nil
}

type rejectAllCallback struct{}

func (rejectAllCallback) Fulfill(string, sdkmath.Int, sdkmath.Int) error {
	return ErrSettlementRejected
}

func newTestPool(t *testing.T, startTick int) (*SimulatedPool, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	p, err := NewSimulatedPool("pool-1", startTick, clock.Now)
	require.NoError(t, err)
	return p, clock
}

func TestNewSimulatedPoolValidation(t *testing.T) {
	clock := newFakeClock()
	_, err := NewSimulatedPool("", 0, clock.Now)
	require.Error(t, err)

	_, err = NewSimulatedPool("pool-1", univ3.MaxTick+1, clock.Now)
	require.ErrorIs(t, err, univ3.ErrTickOutOfRange)
}

func TestMintRangeSettlesBeforeCommitting(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cb := &acceptAllCallback{}

	amount0, amount1, err := p.MintRange(-600, 600, decimal.NewFromInt(1_000_000), cb)
	require.NoError(t, err)
	require.Equal(t, 1, cb.calls)
	require.Equal(t, "pool-1", cb.poolID)
	require.True(t, amount0.Equal(cb.amount0))
	require.True(t, amount1.Equal(cb.amount1))
	require.True(t, amount0.IsPositive())
	require.True(t, amount1.IsPositive())
}

func TestMintRangeRejectedSettlementLeavesNoPosition(t *testing.T) {
	p, _ := newTestPool(t, 0)

	_, _, err := p.MintRange(-600, 600, decimal.NewFromInt(1000), rejectAllCallback{})
	require.ErrorIs(t, err, ErrSettlementRejected)

	_, _, err = p.BurnRange(-600, 600, decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrUnknownPosition)
}

func TestBurnRangeRoundTrip(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cb := &acceptAllCallback{}
	liquidity := decimal.NewFromInt(1_000_000)

	minted0, minted1, err := p.MintRange(-600, 600, liquidity, cb)
	require.NoError(t, err)

	burned0, burned1, err := p.BurnRange(-600, 600, liquidity)
	require.NoError(t, err)

	// Mints round up, burns round down: at most one unit lost per asset.
	require.True(t, minted0.Sub(burned0).LTE(sdkmath.OneInt()))
	require.True(t, minted1.Sub(burned1).LTE(sdkmath.OneInt()))
	require.False(t, burned0.GT(minted0))
	require.False(t, burned1.GT(minted1))
}

func TestBurnRangeExcessive(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cb := &acceptAllCallback{}
	_, _, err := p.MintRange(-600, 600, decimal.NewFromInt(1000), cb)
	require.NoError(t, err)

	_, _, err = p.BurnRange(-600, 600, decimal.NewFromInt(1001))
	require.ErrorIs(t, err, ErrExcessiveBurn)
}

func TestCollectOwedReturnsAndZeroes(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cb := &acceptAllCallback{}
	_, _, err := p.MintRange(-600, 600, decimal.NewFromInt(1000), cb)
	require.NoError(t, err)

	require.NoError(t, p.AccrueFees(-600, 600, sdkmath.NewInt(50), sdkmath.NewInt(70)))

	fee0, fee1, err := p.CollectOwed(-600, 600)
	require.NoError(t, err)
	require.True(t, fee0.Equal(sdkmath.NewInt(50)))
	require.True(t, fee1.Equal(sdkmath.NewInt(70)))

	fee0, fee1, err = p.CollectOwed(-600, 600)
	require.NoError(t, err)
	require.True(t, fee0.IsZero())
	require.True(t, fee1.IsZero())
}

func TestCollectOwedUnknownRangeIsZero(t *testing.T) {
	p, _ := newTestPool(t, 0)
	fee0, fee1, err := p.CollectOwed(-100, 100)
	require.NoError(t, err)
	require.True(t, fee0.IsZero())
	require.True(t, fee1.IsZero())
}

func TestAccrueFeesUnknownRange(t *testing.T) {
	p, _ := newTestPool(t, 0)
	err := p.AccrueFees(-100, 100, sdkmath.OneInt(), sdkmath.OneInt())
	require.ErrorIs(t, err, ErrUnknownPosition)
}

func TestAverageTickTimeWeighted(t *testing.T) {
	p, clock := newTestPool(t, 0)

	clock.Advance(100 * time.Second)
	require.NoError(t, p.SetTick(100))
	clock.Advance(100 * time.Second)

	// Window covers 100s at tick 0 and 100s at tick 100.
	avg, err := p.AverageTick(200 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 50, avg)
}

func TestAverageTickInsufficientHistory(t *testing.T) {
	p, clock := newTestPool(t, 0)
	clock.Advance(10 * time.Second)

	_, err := p.AverageTick(time.Hour)
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestAverageTickInvalidWindow(t *testing.T) {
	p, _ := newTestPool(t, 0)
	_, err := p.AverageTick(0)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRouterSwapAtSpotPrice(t *testing.T) {
	p, clock := newTestPool(t, 0)
	router, err := NewSimulatedRouter(p, decimal.Zero, clock.Now)
	require.NoError(t, err)

	// Tick 0: price is exactly 1, zero fee.
	out, err := router.SwapExactIn(true, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	require.True(t, out.Equal(sdkmath.NewInt(1000)))
}

func TestRouterSwapTakesFee(t *testing.T) {
	p, clock := newTestPool(t, 0)
	router, err := NewSimulatedRouter(p, decimal.RequireFromString("0.003"), clock.Now)
	require.NoError(t, err)

	out, err := router.SwapExactIn(true, sdkmath.NewInt(1000), sdkmath.ZeroInt(), 0)
	require.NoError(t, err)
	require.True(t, out.Equal(sdkmath.NewInt(997)))
}

func TestRouterSwapMinOutNotMet(t *testing.T) {
	p, clock := newTestPool(t, 0)
	router, err := NewSimulatedRouter(p, decimal.RequireFromString("0.003"), clock.Now)
	require.NoError(t, err)

	_, err = router.SwapExactIn(true, sdkmath.NewInt(1000), sdkmath.NewInt(998), 0)
	require.ErrorIs(t, err, ErrMinOutNotMet)
}

func TestRouterSwapDeadlinePassed(t *testing.T) {
	p, clock := newTestPool(t, 0)
	router, err := NewSimulatedRouter(p, decimal.Zero, clock.Now)
	require.NoError(t, err)

	deadline := clock.Now().Unix() - 1
	_, err = router.SwapExactIn(true, sdkmath.NewInt(1000), sdkmath.ZeroInt(), deadline)
	require.ErrorIs(t, err, ErrDeadlinePassed)
}
