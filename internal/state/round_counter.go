/*

This file manages the persistent global round counter. The counter is stored
in the database to ensure continuity across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ensureRoundCounterTable creates the round_counter table if it doesn't exist
func ensureRoundCounterTable() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS round_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_round INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO round_counter (id, current_round)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`

	_, err := DB.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create round_counter table: %w", err)
	}

	log.Debug().Msg("Ensured round_counter table exists")
	return nil
}

// GetCurrentRoundNumber retrieves the current round number from the database
func GetCurrentRoundNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Ensure the table exists
	if err := ensureRoundCounterTable(); err != nil {
		return 0, err
	}

	query := `SELECT current_round FROM round_counter WHERE id = 1;`

	var currentRound int
	row := DB.QueryRow(query)
	err := row.Scan(&currentRound)

	if err != nil {
		if err == sql.ErrNoRows {
			// This should not happen due to the INSERT in ensureRoundCounterTable
			log.Warn().Msg("No round counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current round number: %w", err)
	}

	log.Debug().Int("currentRound", currentRound).Msg("Retrieved current round number")
	return currentRound, nil
}

// IncrementRoundNumber increments the round counter and returns the new value
func IncrementRoundNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Ensure the table exists
	if err := ensureRoundCounterTable(); err != nil {
		return 0, err
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = current_round + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_round;`

	var newRound int
	row := DB.QueryRow(updateQuery)
	err := row.Scan(&newRound)

	if err != nil {
		return 0, fmt.Errorf("failed to increment round number: %w", err)
	}

	log.Info().Int("newRound", newRound).Msg("Incremented round counter")
	return newRound, nil
}

// ResetRoundNumber resets the round counter to a specific value (for testing/maintenance)
func ResetRoundNumber(roundNumber int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// Ensure the table exists
	if err := ensureRoundCounterTable(); err != nil {
		return err
	}

	if roundNumber < 0 {
		return fmt.Errorf("round number cannot be negative: %d", roundNumber)
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.Exec(updateQuery, roundNumber)
	if err != nil {
		return fmt.Errorf("failed to reset round number to %d: %w", roundNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting round number")
	}

	log.Warn().Int("roundNumber", roundNumber).Msg("Reset round counter")
	return nil
}
