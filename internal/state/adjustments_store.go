// ./internal/state/adjustments_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// SaveAdjustmentRecord persists one applied range adjustment.
func SaveAdjustmentRecord(record types.AdjustmentRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO adjustment_records (
            position_id, pool_id, asset,
            old_tick_lower, old_tick_upper, new_tick_lower, new_tick_upper,
            drift_bps, il_prevented_usd, adjusted_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING record_id;`

	var recordID int64
	err := DB.QueryRow(stmt,
		int64(record.PositionID), int64(record.Pool), string(record.Asset),
		record.OldTickLower, record.OldTickUpper, record.NewTickLower, record.NewTickUpper,
		record.DriftBps, record.ILPreventedUSD, record.Timestamp,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert adjustment record for position %d: %w", record.PositionID, err)
	}

	log.Debug().Int64("recordId", recordID).Int64("positionId", int64(record.PositionID)).Msg("Saved adjustment record")
	return recordID, nil
}

// GetAdjustmentHistory returns the newest adjustment records for a position.
func GetAdjustmentHistory(positionID types.PositionID, limit int) ([]types.AdjustmentRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT record_id, position_id, pool_id, asset,
               old_tick_lower, old_tick_upper, new_tick_lower, new_tick_upper,
               drift_bps, il_prevented_usd, adjusted_at
        FROM adjustment_records
        WHERE position_id = $1
        ORDER BY adjusted_at DESC
        LIMIT $2;`

	rows, err := DB.Query(query, int64(positionID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustment history for position %d: %w", positionID, err)
	}
	defer rows.Close()

	return scanAdjustmentRows(rows)
}

// GetRecentAdjustments returns the newest adjustments across all positions of
// an asset, for the dashboard API.
func GetRecentAdjustments(asset types.AssetID, limit int) ([]types.AdjustmentRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT record_id, position_id, pool_id, asset,
               old_tick_lower, old_tick_upper, new_tick_lower, new_tick_upper,
               drift_bps, il_prevented_usd, adjusted_at
        FROM adjustment_records
        WHERE asset = $1
        ORDER BY adjusted_at DESC
        LIMIT $2;`

	rows, err := DB.Query(query, string(asset), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent adjustments for %s: %w", asset, err)
	}
	defer rows.Close()

	return scanAdjustmentRows(rows)
}

// GetDriftSince sums the latest per-position drift applied for an asset since
// a point in time, the backing query of the required-adjustment API.
func GetDriftSince(asset types.AssetID, since time.Time) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT COALESCE(SUM(drift_bps), 0)
        FROM (
            SELECT DISTINCT ON (position_id) drift_bps
            FROM adjustment_records
            WHERE asset = $1 AND adjusted_at >= $2
            ORDER BY position_id, adjusted_at DESC
        ) latest;`

	var drift int64
	if err := DB.QueryRow(query, string(asset), since).Scan(&drift); err != nil {
		return 0, fmt.Errorf("failed to query drift for %s: %w", asset, err)
	}
	return drift, nil
}

func scanAdjustmentRows(rows *sql.Rows) ([]types.AdjustmentRecord, error) {
	var records []types.AdjustmentRecord
	for rows.Next() {
		var rec types.AdjustmentRecord
		var positionID, poolID int64
		var asset string
		if err := rows.Scan(
			&rec.RecordID, &positionID, &poolID, &asset,
			&rec.OldTickLower, &rec.OldTickUpper, &rec.NewTickLower, &rec.NewTickUpper,
			&rec.DriftBps, &rec.ILPreventedUSD, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment record: %w", err)
		}
		rec.PositionID = types.PositionID(positionID)
		rec.Pool = types.PoolID(poolID)
		rec.Asset = types.AssetID(asset)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating adjustment records: %w", err)
	}
	return records, nil
}
