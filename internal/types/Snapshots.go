/*

This file contains the record types persisted after every capital-moving
operation: rebalance snapshots, fee claims and manager-config change events.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RebalanceKind tags what kind of position change a snapshot records.
type RebalanceKind string

const (
	RebalanceFull    RebalanceKind = "FULL"
	RebalanceAdjust  RebalanceKind = "ADJUST"
	RebalanceHold    RebalanceKind = "HOLD"
)

// RebalanceSnapshot captures a position change end to end: the range set
// before and after, the balances, and the optional swap with the deviation
// readings that gated it.
type RebalanceSnapshot struct {
	SnapshotID   int64         `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	RebalanceID  string        `json:"rebalance_id"`          // UUID correlating logs and rows
	VaultID      VaultID       `json:"vault_id"`
	Kind         RebalanceKind `json:"kind"`
	Timestamp    time.Time     `json:"timestamp"`

	RangesBefore []Range `json:"ranges_before"`
	RangesAfter  []Range `json:"ranges_after"`

	Unused0Before sdkmath.Int `json:"unused_0_before"`
	Unused1Before sdkmath.Int `json:"unused_1_before"`
	Unused0After  sdkmath.Int `json:"unused_0_after"`
	Unused1After  sdkmath.Int `json:"unused_1_after"`

	FeesCollected0 sdkmath.Int `json:"fees_collected_0"`
	FeesCollected1 sdkmath.Int `json:"fees_collected_1"`

	SwapExecuted bool              `json:"swap_executed"`
	SwapIn       sdkmath.Int       `json:"swap_in,omitempty"`
	SwapOut      sdkmath.Int       `json:"swap_out,omitempty"`
	PoolPrice    sdkmath.LegacyDec `json:"pool_price,omitempty"`
	OraclePrice  sdkmath.LegacyDec `json:"oracle_price,omitempty"`
}

// FeeClaim records one settlement of the accrual counters.
type FeeClaim struct {
	ClaimID           int64       `json:"claim_id,omitempty"`
	VaultID           VaultID     `json:"vault_id"`
	Timestamp         time.Time   `json:"timestamp"`
	ManagementShares  sdkmath.Int `json:"management_shares"`
	PerformanceShares sdkmath.Int `json:"performance_shares"`
	ProtocolShares    sdkmath.Int `json:"protocol_shares"`
	FeeRecipient      string      `json:"fee_recipient"`
	ProtocolRecipient string      `json:"protocol_recipient"`
}

// ConfigEvent records a single ManagerConfig mutation.
type ConfigEvent struct {
	EventID   int64     `json:"event_id,omitempty"`
	VaultID   VaultID   `json:"vault_id"`
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedBy string    `json:"changed_by"`
}
