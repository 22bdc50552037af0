// ./internal/state/operators_store.go
package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// SaveOperatorRecords upserts the ledger's operator records in one transaction.
func SaveOperatorRecords(records []types.OperatorRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	stmt := `
        INSERT INTO operator_records (address, stake, accuracy_score, flagged_for_deregistration, updated_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (address) DO UPDATE SET
            stake = EXCLUDED.stake,
            accuracy_score = EXCLUDED.accuracy_score,
            flagged_for_deregistration = EXCLUDED.flagged_for_deregistration,
            updated_at = CURRENT_TIMESTAMP;`

	for _, rec := range records {
		if _, err = tx.Exec(stmt, rec.Address, rec.Stake.String(), rec.AccuracyScore, rec.FlaggedForDeregistration); err != nil {
			return fmt.Errorf("failed to save operator record %s: %w", rec.Address, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit operator records: %w", err)
	}

	log.Debug().Int("records", len(records)).Msg("Saved operator records")
	return nil
}

// GetOperatorRecords returns all persisted operator records.
func GetOperatorRecords() ([]types.OperatorRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`SELECT address, stake, accuracy_score, flagged_for_deregistration FROM operator_records;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query operator records: %w", err)
	}
	defer rows.Close()

	var out []types.OperatorRecord
	for rows.Next() {
		var (
			rec      types.OperatorRecord
			stakeStr string
		)
		if err := rows.Scan(&rec.Address, &stakeStr, &rec.AccuracyScore, &rec.FlaggedForDeregistration); err != nil {
			return nil, fmt.Errorf("failed to scan operator record: %w", err)
		}
		stake, ok := sdkmath.NewIntFromString(stakeStr)
		if !ok {
			return nil, fmt.Errorf("unparsable stake %q for operator %s", stakeStr, rec.Address)
		}
		rec.Stake = stake
		out = append(out, rec)
	}
	return out, rows.Err()
}
