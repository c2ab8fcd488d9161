/*

This file contains an in-process pool implementation used by the daemon's
dry-run mode and by the test suite. It models a single concentrated-liquidity
pool: a current tick, a timestamped tick-observation history for TWAP, and
per-range positions with owed-fee accounting.

*/

package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/defiedge/rangevault/internal/logger"
	"github.com/defiedge/rangevault/internal/univ3"
	"github.com/defiedge/rangevault/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownPosition      = errors.New("no position exists for the requested range")
	ErrExcessiveBurn        = errors.New("burn amount exceeds position liquidity")
	ErrInsufficientHistory  = errors.New("pool has insufficient observation history")
	ErrSettlementRejected   = errors.New("settlement callback rejected the payment request")
	ErrInvalidWindow        = errors.New("observation window is invalid")
)

var poolLogger = logger.GetForComponent("pool_simulator")

type observation struct {
	at   time.Time
	tick int
}

type position struct {
	liquidity decimal.Decimal
	owed0     sdkmath.Int
	owed1     sdkmath.Int
}

// SimulatedPool is a deterministic Pool implementation. The clock is
// injectable so tests can control observation timing.
type SimulatedPool struct {
	mu sync.Mutex

	id           string
	tick         int
	observations []observation
	positions    map[string]*position
	clock        func() time.Time
}

// NewSimulatedPool creates a pool at the given starting tick and records the
// first observation.
func NewSimulatedPool(id string, startTick int, clock func() time.Time) (*SimulatedPool, error) {
	if id == "" {
		return nil, errors.New("pool id cannot be empty")
	}
	if startTick < univ3.MinTick || startTick > univ3.MaxTick {
		return nil, fmt.Errorf("%w: %d", univ3.ErrTickOutOfRange, startTick)
	}
	if clock == nil {
		clock = time.Now
	}
	p := &SimulatedPool{
		id:        id,
		tick:      startTick,
		positions: make(map[string]*position),
		clock:     clock,
	}
	p.observations = append(p.observations, observation{at: clock(), tick: startTick})
	return p, nil
}

func (p *SimulatedPool) ID() string {
	return p.id
}

// SetTick moves the pool price and records an observation.
func (p *SimulatedPool) SetTick(tick int) error {
	if tick < univ3.MinTick || tick > univ3.MaxTick {
		return fmt.Errorf("%w: %d", univ3.ErrTickOutOfRange, tick)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick = tick
	p.observations = append(p.observations, observation{at: p.clock(), tick: tick})
	return nil
}

// CurrentTick returns the pool's instantaneous tick.
func (p *SimulatedPool) CurrentTick() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tick
}

func (p *SimulatedPool) CurrentSqrtPrice() decimal.Decimal {
	p.mu.Lock()
	tick := p.tick
	p.mu.Unlock()
	sqrtP, err := univ3.SqrtPriceAtTick(tick)
	if err != nil {
		// Tick is validated on every mutation; this cannot happen.
		poolLogger.Error().Err(err).Int("tick", tick).Msg("invalid current tick")
		return decimal.Zero
	}
	return sqrtP
}

// AccrueFees credits owed trading fees to a position. Tests and the dry-run
// driver use this to model fee growth between rebalances.
func (p *SimulatedPool) AccrueFees(lower, upper int, fee0, fee1 sdkmath.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[rangeKey(lower, upper)]
	if !ok {
		return fmt.Errorf("%w: [%d, %d]", ErrUnknownPosition, lower, upper)
	}
	pos.owed0 = pos.owed0.Add(fee0)
	pos.owed1 = pos.owed1.Add(fee1)
	return nil
}

func (p *SimulatedPool) MintRange(lower, upper int, liquidity decimal.Decimal, cb SettlementCallback) (sdkmath.Int, sdkmath.Int, error) {
	if cb == nil {
		return sdkmath.Int{}, sdkmath.Int{}, errors.New("settlement callback cannot be nil")
	}
	if liquidity.Sign() <= 0 {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", univ3.ErrInvalidLiquidity, liquidity.String())
	}

	amount0, amount1, err := p.amountsFor(lower, upper, liquidity, true)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	// Two-phase settlement: request payment before committing the position.
	if err := cb.Fulfill(p.id, amount0, amount1); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, errors.Join(ErrSettlementRejected, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := rangeKey(lower, upper)
	pos, ok := p.positions[key]
	if !ok {
		pos = &position{liquidity: decimal.Zero, owed0: sdkmath.ZeroInt(), owed1: sdkmath.ZeroInt()}
		p.positions[key] = pos
	}
	pos.liquidity = pos.liquidity.Add(liquidity)

	poolLogger.Debug().
		Int("lower", lower).
		Int("upper", upper).
		Str("liquidity", liquidity.String()).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Msg("Range minted")
	return amount0, amount1, nil
}

func (p *SimulatedPool) BurnRange(lower, upper int, liquidity decimal.Decimal) (sdkmath.Int, sdkmath.Int, error) {
	if liquidity.Sign() <= 0 {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s", univ3.ErrInvalidLiquidity, liquidity.String())
	}

	p.mu.Lock()
	key := rangeKey(lower, upper)
	pos, ok := p.positions[key]
	if !ok {
		p.mu.Unlock()
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: [%d, %d]", ErrUnknownPosition, lower, upper)
	}
	if liquidity.GreaterThan(pos.liquidity) {
		p.mu.Unlock()
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s > %s", ErrExcessiveBurn, liquidity.String(), pos.liquidity.String())
	}
	pos.liquidity = pos.liquidity.Sub(liquidity)
	if pos.liquidity.IsZero() && pos.owed0.IsZero() && pos.owed1.IsZero() {
		delete(p.positions, key)
	}
	p.mu.Unlock()

	amount0, amount1, err := p.amountsFor(lower, upper, liquidity, false)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	poolLogger.Debug().
		Int("lower", lower).
		Int("upper", upper).
		Str("liquidity", liquidity.String()).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Msg("Range burned")
	return amount0, amount1, nil
}

func (p *SimulatedPool) CollectOwed(lower, upper int) (sdkmath.Int, sdkmath.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[rangeKey(lower, upper)]
	if !ok {
		// A position with no liquidity and no owed fees has nothing to collect.
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}
	fee0, fee1 := pos.owed0, pos.owed1
	pos.owed0 = sdkmath.ZeroInt()
	pos.owed1 = sdkmath.ZeroInt()
	if pos.liquidity.IsZero() {
		delete(p.positions, rangeKey(lower, upper))
	}
	return fee0, fee1, nil
}

// AverageTick computes the time-weighted average tick over the trailing
// window from the recorded observations.
func (p *SimulatedPool) AverageTick(window time.Duration) (int, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidWindow, window)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	start := now.Add(-window)
	if len(p.observations) == 0 || p.observations[0].at.After(start) {
		return 0, fmt.Errorf("%w: need %s of history", ErrInsufficientHistory, window)
	}

	// Integrate tick over [start, now]. Observations are append-only and
	// time-ordered; each holds until the next one.
	var weighted float64
	for i, obs := range p.observations {
		segStart := obs.at
		if segStart.Before(start) {
			segStart = start
		}
		segEnd := now
		if i+1 < len(p.observations) {
			next := p.observations[i+1].at
			if next.Before(segEnd) {
				segEnd = next
			}
		}
		if !segEnd.After(segStart) {
			continue
		}
		weighted += float64(obs.tick) * segEnd.Sub(segStart).Seconds()
	}

	avg := weighted / window.Seconds()
	// Round toward negative infinity, matching tick semantics.
	tick := int(avg)
	if avg < 0 && float64(tick) != avg {
		tick--
	}
	return tick, nil
}

// amountsFor converts liquidity to token amounts at the current price.
// Mints round up (the position must be fully backed); burns round down.
func (p *SimulatedPool) amountsFor(lower, upper int, liquidity decimal.Decimal, roundUp bool) (sdkmath.Int, sdkmath.Int, error) {
	if lower >= upper {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: [%d, %d]", univ3.ErrInvalidSqrtPrice, lower, upper)
	}
	sqrtA, err := univ3.SqrtPriceAtTick(lower)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	sqrtB, err := univ3.SqrtPriceAtTick(upper)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	amount0Dec, amount1Dec, err := univ3.AmountsForLiquidity(p.CurrentSqrtPrice(), sqrtA, sqrtB, liquidity)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	if roundUp {
		amount0Dec = amount0Dec.Ceil()
		amount1Dec = amount1Dec.Ceil()
	}
	amount0, err := utils.DecimalToSDKInt(amount0Dec)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	amount1, err := utils.DecimalToSDKInt(amount1Dec)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return amount0, amount1, nil
}

func rangeKey(lower, upper int) string {
	return fmt.Sprintf("%d:%d", lower, upper)
}
