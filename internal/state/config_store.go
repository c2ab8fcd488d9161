package state

import (
	"fmt"

	"github.com/defiedge/rangevault/internal/types"
)

// SaveConfigEvent saves one manager-config change to the database.
func SaveConfigEvent(event types.ConfigEvent) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO config_events (
			vault_id, event_timestamp, field, old_value, new_value, changed_by
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id;
	`

	var eventID int64
	err := DB.QueryRow(
		query,
		int64(event.VaultID), event.Timestamp,
		event.Field, event.OldValue, event.NewValue, event.ChangedBy,
	).Scan(&eventID)

	if err != nil {
		return 0, fmt.Errorf("failed to save config event: %w", err)
	}
	return eventID, nil
}

// ListConfigEvents returns the most recent config changes of one vault,
// newest first.
func ListConfigEvents(vaultID types.VaultID, limit int) ([]types.ConfigEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT event_id, vault_id, event_timestamp, field, old_value, new_value, changed_by
		FROM config_events
		WHERE vault_id = $1
		ORDER BY event_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, int64(vaultID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query config events: %w", err)
	}
	defer rows.Close()

	var events []types.ConfigEvent
	for rows.Next() {
		var (
			e     types.ConfigEvent
			vault int64
		)
		err = rows.Scan(&e.EventID, &vault, &e.Timestamp, &e.Field, &e.OldValue, &e.NewValue, &e.ChangedBy)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config event: %w", err)
		}
		e.VaultID = types.VaultID(vault)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recorder adapts the package-level store functions to the engine's
// Recorder interface. The zero value is ready to use once InitDB ran.
type Recorder struct{}

func (Recorder) RecordRebalance(snapshot types.RebalanceSnapshot) error {
	_, err := SaveRebalanceSnapshot(snapshot)
	return err
}

func (Recorder) RecordFeeClaim(claim types.FeeClaim) error {
	_, err := SaveFeeClaim(claim)
	return err
}

func (Recorder) RecordConfigEvent(event types.ConfigEvent) error {
	_, err := SaveConfigEvent(event)
	return err
}
