package engine

import (
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/defiedge/rangevault/internal/feed"
	"github.com/defiedge/rangevault/internal/pool"
	"github.com/defiedge/rangevault/internal/pricing"
	"github.com/defiedge/rangevault/internal/registry"
	"github.com/defiedge/rangevault/internal/types"
)

const (
	testOperator          = "operator"
	testFeeRecipient      = "fee-recipient"
	testProtocolRecipient = "protocol-treasury"
	testDepositor         = "alice"
)

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

// stubSource serves one settable price for every pair, always fresh.
type stubSource struct {
	mu    sync.Mutex
	value sdkmath.Int
	clock *fakeClock
}

func (s *stubSource) LatestAnswer(base, quote string) (feed.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return feed.Answer{Value: s.value, Decimals: 18, UpdatedAt: s.clock.Now()}, nil
}

// SetPrice sets the reference price as an 18-decimal string, e.g. "1.02".
func (s *stubSource) SetPrice(t *testing.T, price string) {
	t.Helper()
	dec, err := sdkmath.LegacyNewDecFromStr(price)
	require.NoError(t, err)
	s.mu.Lock()
	s.value = dec.MulInt64(1e18).TruncateInt()
	s.mu.Unlock()
}

// captureRecorder collects everything the vault persists.
type captureRecorder struct {
	rebalances []types.RebalanceSnapshot
	claims     []types.FeeClaim
	events     []types.ConfigEvent
}

func (r *captureRecorder) RecordRebalance(s types.RebalanceSnapshot) error {
	r.rebalances = append(r.rebalances, s)
	return nil
}

func (r *captureRecorder) RecordFeeClaim(c types.FeeClaim) error {
	r.claims = append(r.claims, c)
	return nil
}

func (r *captureRecorder) RecordConfigEvent(e types.ConfigEvent) error {
	r.events = append(r.events, e)
	return nil
}

type harness struct {
	vault *Vault
	pool  *pool.SimulatedPool
	clock *fakeClock
	reg   *registry.StaticRegistry
	rec   *captureRecorder
	src   *stubSource
}

// newHarness builds a vault over a simulated pool at tick 0 (price 1) with
// a matching reference feed. mutate may adjust the manager config before
// construction.
func newHarness(t *testing.T, mutate func(*types.ManagerConfig)) *harness {
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

	manager := types.ManagerConfig{
		Operator:              testOperator,
		FeeRecipient:          testFeeRecipient,
		ManagementFeeRate:     0,
		PerformanceFeeRate:    0,
		DepositCeiling:        sdkmath.ZeroInt(),
		AllowedDeviationPrice: deviationPrice,
		AllowedDeviationSwap:  deviationSwap,
		MaxRanges:             5,
	}
	if mutate != nil {
		mutate(&manager)
	}

	rec := &captureRecorder{}
	vault, err := NewVault(Config{
		VaultID: 1,
		Manager: manager,
		Pair: types.PairConfig{
			Asset0:     types.Asset{Symbol: "ETH", Decimals: 18},
			Asset1:     types.Asset{Symbol: "USDC", Decimals: 18},
			Source:     types.PriceSourceFeed,
			Heartbeat:  time.Hour,
			TwapWindow: 30 * time.Minute,
		},
		Pool:     simPool,
		Router:   router,
		Prices:   prices,
		Registry: reg,
		Recorder: rec,
		Clock:    clock.Now,
	})
	require.NoError(t, err)

	return &harness{vault: vault, pool: simPool, clock: clock, reg: reg, rec: rec, src: src}
}

func atto(units int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(units, 18)
}

// seedVault mints one unit of each asset from the default depositor.
func (h *harness) seedVault(t *testing.T) sdkmath.Int {
	t.Helper()
	shares, err := h.vault.Mint(testDepositor, atto(1), atto(1), sdkmath.ZeroInt(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.NoError(t, err)
	return shares
}

// deploySingleRange rebalances all unused balances into [-600, 600].
func (h *harness) deploySingleRange(t *testing.T) {
	t.Helper()
	err := h.vault.Rebalance(testOperator, []types.RangeBounds{
		{LowerTick: -600, UpperTick: 600},
	}, nil)
	require.NoError(t, err)
}
