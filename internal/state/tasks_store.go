// ./internal/state/tasks_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// SaveTask upserts a task row with its current state and optional response.
func SaveTask(task types.Task, response *types.TaskResponse) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var (
		consensusBps sql.NullInt64
		operators    []byte
		dataHash     sql.NullString
	)
	if response != nil {
		consensusBps = sql.NullInt64{Int64: response.ConsensusYieldBps, Valid: true}
		dataHash = sql.NullString{String: response.DataHash, Valid: true}
		var err error
		operators, err = json.Marshal(response.ContributingOperators)
		if err != nil {
			return fmt.Errorf("failed to marshal contributing operators: %w", err)
		}
	}

	stmt := `
        INSERT INTO tasks (
            task_id, asset, quorum_threshold_bps, created_at,
            response_window_end, challenge_window_end, state,
            consensus_yield_bps, contributing_operators, data_hash
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (task_id) DO UPDATE SET
            challenge_window_end = EXCLUDED.challenge_window_end,
            state = EXCLUDED.state,
            consensus_yield_bps = EXCLUDED.consensus_yield_bps,
            contributing_operators = EXCLUDED.contributing_operators,
            data_hash = EXCLUDED.data_hash;`

	var challengeWindowEnd interface{}
	if !task.ChallengeWindowEnd.IsZero() {
		challengeWindowEnd = task.ChallengeWindowEnd
	}

	_, err := DB.Exec(stmt,
		int64(task.ID), string(task.Asset), task.QuorumThresholdBps, task.CreatedAt,
		task.ResponseWindowEnd, challengeWindowEnd, string(task.State),
		consensusBps, operators, dataHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %d: %w", task.ID, err)
	}

	log.Debug().Int64("taskId", int64(task.ID)).Str("state", string(task.State)).Msg("Saved task")
	return nil
}

// SaveChallenge upserts a challenge row and its settlement bookkeeping.
func SaveChallenge(challenge types.Challenge, outcome *types.ChallengeOutcome) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	var (
		groundTruth sql.NullInt64
		slashed     sql.NullString
		reward      sql.NullString
	)
	if outcome != nil {
		groundTruth = sql.NullInt64{Int64: outcome.GroundTruthBps, Valid: true}
		slashed = sql.NullString{String: outcome.TotalSlashed.String(), Valid: true}
		reward = sql.NullString{String: outcome.ChallengerReward.String(), Valid: true}
	}

	stmt := `
        INSERT INTO challenges (
            task_id, challenger, reported_value_bps, evidence_value_bps,
            bond, status, ground_truth_bps, total_slashed, challenger_reward,
            raised_at, resolved_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (task_id) DO UPDATE SET
            status = EXCLUDED.status,
            ground_truth_bps = EXCLUDED.ground_truth_bps,
            total_slashed = EXCLUDED.total_slashed,
            challenger_reward = EXCLUDED.challenger_reward,
            resolved_at = EXCLUDED.resolved_at;`

	_, err := DB.Exec(stmt,
		int64(challenge.TaskID), challenge.Challenger, challenge.ReportedValueBps, challenge.EvidenceValueBps,
		challenge.Bond.String(), string(challenge.Status), groundTruth, slashed, reward,
		challenge.RaisedAt, challenge.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save challenge for task %d: %w", challenge.TaskID, err)
	}

	log.Debug().Int64("taskId", int64(challenge.TaskID)).Str("status", string(challenge.Status)).Msg("Saved challenge")
	return nil
}

// GetRecentTasks returns the newest task rows for an asset, newest first.
func GetRecentTasks(asset types.AssetID, limit int) ([]types.Task, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT task_id, asset, quorum_threshold_bps, created_at,
               response_window_end, challenge_window_end, state
        FROM tasks
        WHERE asset = $1
        ORDER BY created_at DESC
        LIMIT $2;`

	rows, err := DB.Query(query, string(asset), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tasks for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var (
			task               types.Task
			id                 int64
			assetStr, stateStr string
			challengeWindowEnd sql.NullTime
		)
		if err := rows.Scan(&id, &assetStr, &task.QuorumThresholdBps, &task.CreatedAt,
			&task.ResponseWindowEnd, &challengeWindowEnd, &stateStr); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		task.ID = types.TaskID(id)
		task.Asset = types.AssetID(assetStr)
		task.State = types.TaskState(stateStr)
		if challengeWindowEnd.Valid {
			task.ChallengeWindowEnd = challengeWindowEnd.Time
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// GetLatestFinalizedYield returns the consensus value of the most recent
// finalized task for an asset, or sql.ErrNoRows wrapped when none exists.
func GetLatestFinalizedYield(asset types.AssetID) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT consensus_yield_bps
        FROM tasks
        WHERE asset = $1 AND state = $2 AND consensus_yield_bps IS NOT NULL
        ORDER BY created_at DESC
        LIMIT 1;`

	var yieldBps int64
	err := DB.QueryRow(query, string(asset), string(types.TaskStateFinalized)).Scan(&yieldBps)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%w: asset %s", types.ErrNoFinalizedYield, asset)
		}
		return 0, fmt.Errorf("failed to query finalized yield for %s: %w", asset, err)
	}
	return yieldBps, nil
}
