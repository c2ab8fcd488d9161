package engine

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/defiedge/rangevault/internal/pool"
	"github.com/defiedge/rangevault/internal/pricing"
	"github.com/defiedge/rangevault/internal/registry"
	"github.com/defiedge/rangevault/internal/types"
)

// guardHarness builds a vault over a wrapped pool so tests can interpose on
// the mint settlement path.
func guardHarness(t *testing.T, wrap func(*pool.SimulatedPool) pool.Pool) (*Vault, *pool.SimulatedPool) {
	t.Helper()

	clock := newFakeClock()
	src := &stubSource{value: sdkmath.NewIntWithDecimal(1, 18), clock: clock}
	reg, err := registry.NewStaticRegistry(time.Hour, testProtocolRecipient)
	require.NoError(t, err)
	simPool, err := pool.NewSimulatedPool("pool-1", 0, clock.Now)
	require.NoError(t, err)
	router, err := pool.NewSimulatedRouter(simPool, decimal.Zero, clock.Now)
	require.NoError(t, err)
	prices, err := pricing.NewEngine(src, reg, clock.Now)
	require.NoError(t, err)

	deviationPrice, err := sdkmath.LegacyNewDecFromStr("0.01")
	require.NoError(t, err)
	deviationSwap, err := sdkmath.LegacyNewDecFromStr("0.005")
	require.NoError(t, err)

	var p pool.Pool = simPool
	if wrap != nil {
		p = wrap(simPool)
	}

	vault, err := NewVault(Config{
		VaultID: 1,
		Manager: types.ManagerConfig{
			Operator:              testOperator,
			FeeRecipient:          testFeeRecipient,
			DepositCeiling:        sdkmath.ZeroInt(),
			AllowedDeviationPrice: deviationPrice,
			AllowedDeviationSwap:  deviationSwap,
			MaxRanges:             5,
		},
		Pair: types.PairConfig{
			Asset0:     types.Asset{Symbol: "ETH", Decimals: 18},
			Asset1:     types.Asset{Symbol: "USDC", Decimals: 18},
			Source:     types.PriceSourceFeed,
			Heartbeat:  time.Hour,
			TwapWindow: 30 * time.Minute,
		},
		Pool:     p,
		Router:   router,
		Prices:   prices,
		Registry: reg,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	return vault, simPool
}

func TestFulfillRejectsUnknownPool(t *testing.T) {
	v, _ := guardHarness(t, nil)

	err := v.Fulfill("other-pool", sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrUntrustedCaller)
}

func TestFulfillWithoutPendingSettlement(t *testing.T) {
	v, _ := guardHarness(t, nil)

	err := v.Fulfill("pool-1", sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrUnexpectedSettlement)
}

// reentrantPool re-enters the vault from inside the mint settlement window.
type reentrantPool struct {
	*pool.SimulatedPool
	vault    *Vault
	innerErr error
}

func (p *reentrantPool) MintRange(lower, upper int, liquidity decimal.Decimal, cb pool.SettlementCallback) (sdkmath.Int, sdkmath.Int, error) {
	p.innerErr = p.vault.Hold(testOperator)
	return p.SimulatedPool.MintRange(lower, upper, liquidity, cb)
}

func TestReentrantCallRejected(t *testing.T) {
	var hostile *reentrantPool
	v, _ := guardHarness(t, func(sp *pool.SimulatedPool) pool.Pool {
		hostile = &reentrantPool{SimulatedPool: sp}
		return hostile
	})
	hostile.vault = v

	_, err := v.Mint(testDepositor, atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	err = v.Rebalance(testOperator, []types.RangeBounds{{LowerTick: -600, UpperTick: 600}}, nil)
	require.NoError(t, err)

	require.ErrorIs(t, hostile.innerErr, ErrReentrant)
	require.Len(t, v.State().ActiveRanges, 1)
}

// mismatchPool settles with amounts other than the quoted ones.
type mismatchPool struct {
	*pool.SimulatedPool
	settleErr error
}

func (p *mismatchPool) MintRange(lower, upper int, liquidity decimal.Decimal, cb pool.SettlementCallback) (sdkmath.Int, sdkmath.Int, error) {
	p.settleErr = cb.Fulfill(p.ID(), sdkmath.NewInt(1), sdkmath.NewInt(1))
	if p.settleErr != nil {
		return sdkmath.Int{}, sdkmath.Int{}, p.settleErr
	}
	return sdkmath.NewInt(1), sdkmath.NewInt(1), nil
}

func TestSettlementMismatchRejected(t *testing.T) {
	var hostile *mismatchPool
	v, _ := guardHarness(t, func(sp *pool.SimulatedPool) pool.Pool {
		hostile = &mismatchPool{SimulatedPool: sp}
		return hostile
	})

	_, err := v.Mint(testDepositor, atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	err = v.Rebalance(testOperator, []types.RangeBounds{{LowerTick: -600, UpperTick: 600}}, nil)
	require.Error(t, err)
	require.ErrorIs(t, hostile.settleErr, ErrSettlementMismatch)

	// Rolled back: balances intact, still idle.
	state := v.State()
	require.True(t, state.Idle)
	require.True(t, state.UnusedAmount0.Equal(atto(1)))
	require.True(t, state.UnusedAmount1.Equal(atto(1)))
}

// silentPool reports a successful mint without ever settling payment.
type silentPool struct {
	*pool.SimulatedPool
}

func (p *silentPool) MintRange(lower, upper int, liquidity decimal.Decimal, cb pool.SettlementCallback) (sdkmath.Int, sdkmath.Int, error) {
	return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
}

func TestUnsettledMintRejected(t *testing.T) {
	v, _ := guardHarness(t, func(sp *pool.SimulatedPool) pool.Pool {
		return &silentPool{SimulatedPool: sp}
	})

	_, err := v.Mint(testDepositor, atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	err = v.Rebalance(testOperator, []types.RangeBounds{{LowerTick: -600, UpperTick: 600}}, nil)
	require.ErrorIs(t, err, ErrUnexpectedSettlement)
	require.True(t, v.State().Idle)
}
