package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS rebalance_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			rebalance_id UUID NOT NULL,
			vault_id BIGINT NOT NULL,
			kind VARCHAR(10) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

			ranges_before JSONB,
			ranges_after JSONB,

			unused_0_before NUMERIC(78, 0) NOT NULL,
			unused_1_before NUMERIC(78, 0) NOT NULL,
			unused_0_after NUMERIC(78, 0) NOT NULL,
			unused_1_after NUMERIC(78, 0) NOT NULL,

			fees_collected_0 NUMERIC(78, 0) NOT NULL DEFAULT 0,
			fees_collected_1 NUMERIC(78, 0) NOT NULL DEFAULT 0,

			swap_executed BOOLEAN NOT NULL DEFAULT FALSE,
			swap_in NUMERIC(78, 0),
			swap_out NUMERIC(78, 0),
			pool_price NUMERIC(60, 18),
			oracle_price NUMERIC(60, 18),

			CONSTRAINT uq_rebalance_snapshots_rebalance_id UNIQUE (rebalance_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_snapshots_vault_timestamp ON rebalance_snapshots(vault_id, snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalance_snapshots_kind ON rebalance_snapshots(kind);

		CREATE TABLE IF NOT EXISTS fee_claims (
			claim_id SERIAL PRIMARY KEY,
			vault_id BIGINT NOT NULL,
			claim_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			management_shares NUMERIC(78, 0) NOT NULL,
			performance_shares NUMERIC(78, 0) NOT NULL,
			protocol_shares NUMERIC(78, 0) NOT NULL,
			fee_recipient TEXT NOT NULL,
			protocol_recipient TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fee_claims_vault_timestamp ON fee_claims(vault_id, claim_timestamp DESC);

		CREATE TABLE IF NOT EXISTS config_events (
			event_id SERIAL PRIMARY KEY,
			vault_id BIGINT NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			field VARCHAR(100) NOT NULL,
			old_value TEXT NOT NULL,
			new_value TEXT NOT NULL,
			changed_by TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_config_events_vault_timestamp ON config_events(vault_id, event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_config_events_field ON config_events(field);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
