package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/defiedge/rangevault/internal/types"
)

// SaveFeeClaim saves one fee-claim settlement to the database.
func SaveFeeClaim(claim types.FeeClaim) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO fee_claims (
			vault_id, claim_timestamp,
			management_shares, performance_shares, protocol_shares,
			fee_recipient, protocol_recipient
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING claim_id;
	`

	var claimID int64
	err := DB.QueryRow(
		query,
		int64(claim.VaultID), claim.Timestamp,
		intArg(claim.ManagementShares), intArg(claim.PerformanceShares), intArg(claim.ProtocolShares),
		claim.FeeRecipient, claim.ProtocolRecipient,
	).Scan(&claimID)

	if err != nil {
		return 0, fmt.Errorf("failed to save fee claim: %w", err)
	}

	log.Info().
		Int64("claim_id", claimID).
		Int64("vault_id", int64(claim.VaultID)).
		Msg("Fee claim saved to database")

	return claimID, nil
}

// ListFeeClaims returns the most recent fee claims of one vault, newest first.
func ListFeeClaims(vaultID types.VaultID, limit int) ([]types.FeeClaim, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT claim_id, vault_id, claim_timestamp,
			management_shares, performance_shares, protocol_shares,
			fee_recipient, protocol_recipient
		FROM fee_claims
		WHERE vault_id = $1
		ORDER BY claim_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, int64(vaultID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee claims: %w", err)
	}
	defer rows.Close()

	var claims []types.FeeClaim
	for rows.Next() {
		var (
			c                types.FeeClaim
			vault            int64
			mgmt, perf, prot string
		)
		err = rows.Scan(
			&c.ClaimID, &vault, &c.Timestamp,
			&mgmt, &perf, &prot,
			&c.FeeRecipient, &c.ProtocolRecipient,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee claim: %w", err)
		}
		c.VaultID = types.VaultID(vault)
		if c.ManagementShares, err = parseInt(mgmt); err != nil {
			return nil, err
		}
		if c.PerformanceShares, err = parseInt(perf); err != nil {
			return nil, err
		}
		if c.ProtocolShares, err = parseInt(prot); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
