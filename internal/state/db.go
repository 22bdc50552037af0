// ./internal/state/db.go
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
		CREATE TABLE IF NOT EXISTS consensus_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			max_yield_bps BIGINT NOT NULL,
			cluster_tolerance_bps BIGINT NOT NULL,
			quorum_threshold_bps BIGINT NOT NULL,
			response_window_seconds BIGINT NOT NULL,
			challenge_window_seconds BIGINT NOT NULL,
			challenge_tolerance_bps BIGINT NOT NULL,
			slash_bps BIGINT NOT NULL,
			challenger_reward_bps BIGINT NOT NULL,
			adjustment_cooldown_seconds BIGINT NOT NULL,
			shift_factor BIGINT NOT NULL,
			prevention_factor DECIMAL(10, 4) NOT NULL,
			CONSTRAINT uq_consensus_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_consensus_parameters_config_active
			ON consensus_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS tasks (
			task_id BIGINT PRIMARY KEY,
			asset VARCHAR(64) NOT NULL,
			quorum_threshold_bps BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			response_window_end TIMESTAMPTZ NOT NULL,
			challenge_window_end TIMESTAMPTZ,
			state VARCHAR(32) NOT NULL,
			consensus_yield_bps BIGINT,
			contributing_operators JSONB,
			data_hash VARCHAR(64)
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_asset_created ON tasks(asset, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);

		CREATE TABLE IF NOT EXISTS challenges (
			task_id BIGINT PRIMARY KEY REFERENCES tasks(task_id),
			challenger VARCHAR(128) NOT NULL,
			reported_value_bps BIGINT NOT NULL,
			evidence_value_bps BIGINT NOT NULL,
			bond NUMERIC(40, 0) NOT NULL,
			status VARCHAR(32) NOT NULL,
			ground_truth_bps BIGINT,
			total_slashed NUMERIC(40, 0),
			challenger_reward NUMERIC(40, 0),
			raised_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status);

		CREATE TABLE IF NOT EXISTS operator_records (
			address VARCHAR(128) PRIMARY KEY,
			stake NUMERIC(40, 0) NOT NULL,
			accuracy_score BIGINT NOT NULL,
			flagged_for_deregistration BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS adjustment_records (
			record_id SERIAL PRIMARY KEY,
			position_id BIGINT NOT NULL,
			pool_id BIGINT NOT NULL,
			asset VARCHAR(64) NOT NULL,
			old_tick_lower BIGINT NOT NULL,
			old_tick_upper BIGINT NOT NULL,
			new_tick_lower BIGINT NOT NULL,
			new_tick_upper BIGINT NOT NULL,
			drift_bps BIGINT NOT NULL,
			il_prevented_usd DECIMAL(20, 8) NOT NULL,
			adjusted_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_adjustment_records_position ON adjustment_records(position_id, adjusted_at DESC);
		CREATE INDEX IF NOT EXISTS idx_adjustment_records_asset ON adjustment_records(asset, adjusted_at DESC);

		CREATE TABLE IF NOT EXISTS round_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			round_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			asset VARCHAR(64) NOT NULL,
			task_id BIGINT NOT NULL,
			task_state VARCHAR(32) NOT NULL,
			submission_count INTEGER NOT NULL,
			consensus_yield_bps BIGINT,
			adjusted_positions INTEGER NOT NULL,
			il_prevented_usd DECIMAL(20, 8) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_round_snapshots_asset ON round_snapshots(asset, snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_round_snapshots_round ON round_snapshots(round_number DESC);

		-- Round counter table for persistent global round tracking
		CREATE TABLE IF NOT EXISTS round_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_round INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO round_counter (id, current_round)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
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
