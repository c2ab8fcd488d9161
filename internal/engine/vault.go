/*

This file contains the Vault: the single type composing the manager
configuration, the share ledger, the position ledger and the fee accrual
counters, wired to the pool/router boundary and the price engine.

Execution is transaction-atomic: every exported operation either completes
or leaves state untouched. Mutating entry points run under a reentrancy
guard because pool settlement callbacks re-enter the vault mid-call.

*/

package engine

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/defiedge/rangevault/internal/logger"
	"github.com/defiedge/rangevault/internal/pool"
	"github.com/defiedge/rangevault/internal/pricing"
	"github.com/defiedge/rangevault/internal/registry"
	"github.com/defiedge/rangevault/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotOperator          = errors.New("caller is not the vault operator")
	ErrUnauthorized         = errors.New("caller is not permitted to mint or burn")
	ErrDenylisted           = errors.New("vault is denylisted by the governing registry")
	ErrReentrant            = errors.New("recursive entry into a mutating operation")
	ErrUntrustedCaller      = errors.New("settlement callback from unrecognized caller")
	ErrUnexpectedSettlement = errors.New("no settlement is pending")
	ErrSettlementMismatch   = errors.New("settlement amounts do not match the computed quote")
	ErrInsufficientAmount   = errors.New("contribution amount is insufficient")
	ErrInsufficientAmount0  = errors.New("computed amount0 is below the caller minimum")
	ErrInsufficientAmount1  = errors.New("computed amount1 is below the caller minimum")
	ErrInsufficientBalance  = errors.New("balance is insufficient")
	ErrSlippageExceeded     = errors.New("output is below the caller-supplied minimum")
	ErrDeviationExceeded    = errors.New("pool price deviates from reference beyond the allowed bound")
	ErrDepositCeiling       = errors.New("deposit would exceed the vault's deposit ceiling")
	ErrUnknownRange         = errors.New("no active range with the requested bounds")
	ErrVaultMisconfigured   = errors.New("vault construction parameters are invalid")
)

// Recorder receives durable records of capital-moving operations. A nil
// recorder disables persistence; recorder failures are logged, not fatal,
// since the engine state itself is authoritative.
type Recorder interface {
	RecordRebalance(snapshot types.RebalanceSnapshot) error
	RecordFeeClaim(claim types.FeeClaim) error
	RecordConfigEvent(event types.ConfigEvent) error
}

// Vault is one managed vault instance. Not safe for concurrent use: the
// execution model is strictly sequential, matching the host's transaction
// ordering. The reentrancy guard protects against callback re-entry, not
// against parallel goroutines.
type Vault struct {
	id   types.VaultID
	cfg  types.ManagerConfig
	pair types.PairConfig

	state    types.VaultState
	balances map[string]sdkmath.Int

	pool   pool.Pool
	router pool.Router
	prices *pricing.Engine
	reg    registry.Registry

	recorder Recorder
	clock    func() time.Time
	log      zerolog.Logger

	entered bool
	pending *pendingSettlement
}

// Config holds everything needed to construct a Vault.
type Config struct {
	VaultID  types.VaultID
	Manager  types.ManagerConfig
	Pair     types.PairConfig
	Pool     pool.Pool
	Router   pool.Router
	Prices   *pricing.Engine
	Registry registry.Registry
	Recorder Recorder         // optional
	Clock    func() time.Time // optional, defaults to time.Now
}

// NewVault validates the configuration and returns an empty idle vault.
func NewVault(cfg Config) (*Vault, error) {
	if err := validateVaultConfig(cfg); err != nil {
		return nil, errors.Join(ErrVaultMisconfigured, err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	v := &Vault{
		id:       cfg.VaultID,
		cfg:      cfg.Manager,
		pair:     cfg.Pair,
		state:    types.NewVaultState(),
		balances: make(map[string]sdkmath.Int),
		pool:     cfg.Pool,
		router:   cfg.Router,
		prices:   cfg.Prices,
		reg:      cfg.Registry,
		recorder: cfg.Recorder,
		clock:    clock,
		log:      logger.GetForComponent("vault_engine"),
	}
	v.log.Info().
		Uint64("vaultId", uint64(cfg.VaultID)).
		Str("pair", cfg.Pair.PairKey()).
		Str("operator", cfg.Manager.Operator).
		Msg("Vault initialized")
	return v, nil
}

func validateVaultConfig(cfg Config) error {
	if cfg.VaultID == 0 {
		return errors.New("vault ID cannot be zero")
	}
	if err := cfg.Manager.Validate(); err != nil {
		return err
	}
	if err := cfg.Pair.Validate(); err != nil {
		return err
	}
	if cfg.Pool == nil {
		return errors.New("pool cannot be nil")
	}
	if cfg.Router == nil {
		return errors.New("router cannot be nil")
	}
	if cfg.Prices == nil {
		return errors.New("price engine cannot be nil")
	}
	if cfg.Registry == nil {
		return errors.New("registry cannot be nil")
	}
	return nil
}

// --- Read-only accessors ---

func (v *Vault) ID() types.VaultID { return v.id }

// State returns a copy of the vault state.
func (v *Vault) State() types.VaultState {
	s := v.state
	s.ActiveRanges = append([]types.Range(nil), v.state.ActiveRanges...)
	return s
}

// ManagerConfig returns a copy of the current configuration.
func (v *Vault) ManagerConfig() types.ManagerConfig {
	c := v.cfg
	if c.Whitelist != nil {
		wl := make(map[string]bool, len(c.Whitelist))
		for k, val := range c.Whitelist {
			wl[k] = val
		}
		c.Whitelist = wl
	}
	return c
}

// BalanceOf returns the share balance of addr.
func (v *Vault) BalanceOf(addr string) sdkmath.Int {
	if bal, ok := v.balances[addr]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// TotalShares returns the current share supply, accrued fee shares included.
func (v *Vault) TotalShares() sdkmath.Int { return v.state.TotalShares }

// --- Guards ---

// enter rejects recursive entry into a mutating operation and applies the
// registry denylist, which fails every mutating call.
func (v *Vault) enter(op string) error {
	if v.entered {
		return fmt.Errorf("%w: %s", ErrReentrant, op)
	}
	if v.reg.IsDenylisted(v.id) {
		return fmt.Errorf("%w: vault %d", ErrDenylisted, v.id)
	}
	v.entered = true
	return nil
}

func (v *Vault) exit() {
	v.entered = false
	v.pending = nil
}

// authorize resolves the capability required by an entry point once per call.
func (v *Vault) authorize(caller string, required types.Capability) error {
	if caller == "" {
		return fmt.Errorf("%w: empty caller", ErrUnauthorized)
	}
	switch required {
	case types.CapabilityOperator:
		if caller != v.cfg.Operator {
			return fmt.Errorf("%w: %s", ErrNotOperator, caller)
		}
	case types.CapabilityWhitelisted:
		if !v.cfg.IsWhitelisted(caller) {
			return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
		}
	}
	return nil
}

// --- Settlement ---

// pendingSettlement is the single in-flight token for a pool mint callback.
// It only accepts the exact previously-computed amounts, once.
type pendingSettlement struct {
	poolID    string
	amount0   sdkmath.Int
	amount1   sdkmath.Int
	fulfilled bool
}

// Fulfill is the narrow capability handed to the pool during a range mint.
// It pays exactly the quoted amounts out of the unused balances and rejects
// any caller other than the registered pool.
func (v *Vault) Fulfill(poolID string, amount0, amount1 sdkmath.Int) error {
	if poolID != v.pool.ID() {
		return fmt.Errorf("%w: %s", ErrUntrustedCaller, poolID)
	}
	if v.pending == nil || v.pending.fulfilled {
		return ErrUnexpectedSettlement
	}
	if !amount0.Equal(v.pending.amount0) || !amount1.Equal(v.pending.amount1) {
		return fmt.Errorf("%w: requested (%s, %s), quoted (%s, %s)",
			ErrSettlementMismatch,
			amount0.String(), amount1.String(),
			v.pending.amount0.String(), v.pending.amount1.String())
	}
	if amount0.GT(v.state.UnusedAmount0) || amount1.GT(v.state.UnusedAmount1) {
		return fmt.Errorf("%w: unused balances short of settlement", ErrInsufficientBalance)
	}
	v.state.UnusedAmount0 = v.state.UnusedAmount0.Sub(amount0)
	v.state.UnusedAmount1 = v.state.UnusedAmount1.Sub(amount1)
	v.pending.fulfilled = true
	return nil
}

// --- Atomicity ---

// vaultBackup is a deep copy of everything an operation can mutate.
type vaultBackup struct {
	cfg      types.ManagerConfig
	state    types.VaultState
	balances map[string]sdkmath.Int
}

// backup snapshots the mutable state so a failed operation can roll back
// wholesale instead of unwinding partial pool interactions.
func (v *Vault) backup() vaultBackup {
	b := vaultBackup{
		cfg:      v.ManagerConfig(),
		state:    v.state,
		balances: make(map[string]sdkmath.Int, len(v.balances)),
	}
	b.state.ActiveRanges = append([]types.Range(nil), v.state.ActiveRanges...)
	for addr, bal := range v.balances {
		b.balances[addr] = bal
	}
	return b
}

func (v *Vault) restore(b vaultBackup) {
	v.cfg = b.cfg
	v.state = b.state
	v.balances = b.balances
}

// --- Recorder helpers ---

func (v *Vault) recordRebalance(snapshot types.RebalanceSnapshot) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.RecordRebalance(snapshot); err != nil {
		v.log.Warn().Err(err).Str("rebalanceId", snapshot.RebalanceID).Msg("Failed to persist rebalance snapshot")
	}
}

func (v *Vault) recordFeeClaim(claim types.FeeClaim) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.RecordFeeClaim(claim); err != nil {
		v.log.Warn().Err(err).Msg("Failed to persist fee claim")
	}
}

func (v *Vault) recordConfigEvent(event types.ConfigEvent) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.RecordConfigEvent(event); err != nil {
		v.log.Warn().Err(err).Str("field", event.Field).Msg("Failed to persist config event")
	}
}
