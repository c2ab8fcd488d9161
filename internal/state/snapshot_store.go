package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/defiedge/rangevault/internal/types"
)

// SaveRebalanceSnapshot saves a complete rebalance snapshot to the database.
func SaveRebalanceSnapshot(snapshot types.RebalanceSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	rangesBeforeJSON, err := json.Marshal(snapshot.RangesBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ranges_before: %w", err)
	}
	rangesAfterJSON, err := json.Marshal(snapshot.RangesAfter)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ranges_after: %w", err)
	}

	query := `
		INSERT INTO rebalance_snapshots (
			rebalance_id, vault_id, kind, snapshot_timestamp,
			ranges_before, ranges_after,
			unused_0_before, unused_1_before, unused_0_after, unused_1_after,
			fees_collected_0, fees_collected_1,
			swap_executed, swap_in, swap_out, pool_price, oracle_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.RebalanceID, int64(snapshot.VaultID), string(snapshot.Kind), snapshot.Timestamp,
		rangesBeforeJSON, rangesAfterJSON,
		intArg(snapshot.Unused0Before), intArg(snapshot.Unused1Before),
		intArg(snapshot.Unused0After), intArg(snapshot.Unused1After),
		intArg(snapshot.FeesCollected0), intArg(snapshot.FeesCollected1),
		snapshot.SwapExecuted, nullIntArg(snapshot.SwapIn), nullIntArg(snapshot.SwapOut),
		nullDecArg(snapshot.PoolPrice), nullDecArg(snapshot.OraclePrice),
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save rebalance snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("rebalance_id", snapshot.RebalanceID).
		Str("kind", string(snapshot.Kind)).
		Msg("Rebalance snapshot saved to database")

	return snapshotID, nil
}

// ListRebalanceSnapshots returns the most recent snapshots of one vault,
// newest first.
func ListRebalanceSnapshots(vaultID types.VaultID, limit int) ([]types.RebalanceSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT snapshot_id, rebalance_id, vault_id, kind, snapshot_timestamp,
			ranges_before, ranges_after,
			unused_0_before, unused_1_before, unused_0_after, unused_1_after,
			fees_collected_0, fees_collected_1,
			swap_executed, swap_in, swap_out, pool_price, oracle_price
		FROM rebalance_snapshots
		WHERE vault_id = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, int64(vaultID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.RebalanceSnapshot
	for rows.Next() {
		var (
			s               types.RebalanceSnapshot
			vault           int64
			kind            string
			rangesBefore    []byte
			rangesAfter     []byte
			u0b, u1b        string
			u0a, u1a        string
			f0, f1          string
			swapIn, swapOut sql.NullString
			poolPrice       sql.NullString
			oraclePrice     sql.NullString
		)
		err = rows.Scan(
			&s.SnapshotID, &s.RebalanceID, &vault, &kind, &s.Timestamp,
			&rangesBefore, &rangesAfter,
			&u0b, &u1b, &u0a, &u1a,
			&f0, &f1,
			&s.SwapExecuted, &swapIn, &swapOut, &poolPrice, &oraclePrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rebalance snapshot: %w", err)
		}

		s.VaultID = types.VaultID(vault)
		s.Kind = types.RebalanceKind(kind)
		if err = json.Unmarshal(rangesBefore, &s.RangesBefore); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ranges_before: %w", err)
		}
		if err = json.Unmarshal(rangesAfter, &s.RangesAfter); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ranges_after: %w", err)
		}
		if s.Unused0Before, err = parseInt(u0b); err != nil {
			return nil, err
		}
		if s.Unused1Before, err = parseInt(u1b); err != nil {
			return nil, err
		}
		if s.Unused0After, err = parseInt(u0a); err != nil {
			return nil, err
		}
		if s.Unused1After, err = parseInt(u1a); err != nil {
			return nil, err
		}
		if s.FeesCollected0, err = parseInt(f0); err != nil {
			return nil, err
		}
		if s.FeesCollected1, err = parseInt(f1); err != nil {
			return nil, err
		}
		if swapIn.Valid {
			if s.SwapIn, err = parseInt(swapIn.String); err != nil {
				return nil, err
			}
		}
		if swapOut.Valid {
			if s.SwapOut, err = parseInt(swapOut.String); err != nil {
				return nil, err
			}
		}
		if poolPrice.Valid {
			if s.PoolPrice, err = sdkmath.LegacyNewDecFromStr(poolPrice.String); err != nil {
				return nil, fmt.Errorf("failed to parse pool_price: %w", err)
			}
		}
		if oraclePrice.Valid {
			if s.OraclePrice, err = sdkmath.LegacyNewDecFromStr(oraclePrice.String); err != nil {
				return nil, fmt.Errorf("failed to parse oracle_price: %w", err)
			}
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// intArg renders an Int for a NUMERIC(78, 0) column, nil Ints as zero.
func intArg(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

// nullIntArg renders an optional Int, nil as SQL NULL.
func nullIntArg(v sdkmath.Int) interface{} {
	if v.IsNil() {
		return nil
	}
	return v.String()
}

// nullDecArg renders an optional LegacyDec, nil as SQL NULL.
func nullDecArg(v sdkmath.LegacyDec) interface{} {
	if v.IsNil() {
		return nil
	}
	return v.String()
}

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("failed to parse integer column value %q", s)
	}
	return v, nil
}
