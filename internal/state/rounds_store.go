// ./internal/state/rounds_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// SaveRoundSnapshot persists the per-asset outcome of one orchestrator round.
func SaveRoundSnapshot(snapshot types.RoundSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO round_snapshots (
            round_number, snapshot_timestamp, asset, task_id, task_state,
            submission_count, consensus_yield_bps, adjusted_positions, il_prevented_usd
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING snapshot_id;`

	var snapshotID int64
	err := DB.QueryRow(stmt,
		snapshot.RoundNumber, snapshot.Timestamp, string(snapshot.Asset),
		int64(snapshot.TaskID), string(snapshot.TaskState),
		snapshot.SubmissionCount, snapshot.ConsensusYieldBps,
		snapshot.AdjustedPositions, snapshot.ILPreventedUSD,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert round snapshot for %s round %d: %w",
			snapshot.Asset, snapshot.RoundNumber, err)
	}

	log.Debug().
		Int64("snapshotId", snapshotID).
		Int("round", snapshot.RoundNumber).
		Str("asset", string(snapshot.Asset)).
		Msg("Saved round snapshot")
	return snapshotID, nil
}

// GetRecentRoundSnapshots returns the newest snapshots across all assets.
func GetRecentRoundSnapshots(limit int) ([]types.RoundSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT snapshot_id, round_number, snapshot_timestamp, asset, task_id, task_state,
               submission_count, consensus_yield_bps, adjusted_positions, il_prevented_usd
        FROM round_snapshots
        ORDER BY snapshot_timestamp DESC
        LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent round snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.RoundSnapshot
	for rows.Next() {
		var snap types.RoundSnapshot
		var asset, taskState string
		var taskID int64
		if err := rows.Scan(
			&snap.SnapshotID, &snap.RoundNumber, &snap.Timestamp, &asset, &taskID, &taskState,
			&snap.SubmissionCount, &snap.ConsensusYieldBps, &snap.AdjustedPositions, &snap.ILPreventedUSD,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round snapshot: %w", err)
		}
		snap.Asset = types.AssetID(asset)
		snap.TaskID = types.TaskID(taskID)
		snap.TaskState = types.TaskState(taskState)
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round snapshots: %w", err)
	}
	return snapshots, nil
}
