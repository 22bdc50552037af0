// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// SaveConsensusParameters saves a new version of consensus and adjustment
// parameters. When makeActive is true the previous active row for the config
// is deactivated in the same transaction.
func SaveConsensusParameters(params types.ConsensusParameters, adjParams types.AdjustmentParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE consensus_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO consensus_parameters (
            version, config_name, is_active, activated_at, created_at,
            max_yield_bps, cluster_tolerance_bps, quorum_threshold_bps,
            response_window_seconds, challenge_window_seconds,
            challenge_tolerance_bps, slash_bps, challenger_reward_bps,
            adjustment_cooldown_seconds, shift_factor, prevention_factor
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10,
            $11, $12, $13,
            $14, $15, $16
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.MaxYieldBps, params.ClusterToleranceBps, params.QuorumThresholdBps,
		int64(params.ResponseWindow.Seconds()), int64(params.ChallengeWindow.Seconds()),
		params.ChallengeToleranceBps, params.SlashBps, params.ChallengerRewardBps,
		int64(adjParams.Cooldown.Seconds()), adjParams.ShiftFactor, adjParams.PreventionFactor,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert consensus parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved consensus parameters")
	return paramsID, nil
}

// LoadActiveConsensusParameters loads the currently active parameter set.
func LoadActiveConsensusParameters(configName string) (*types.ConsensusParameters, *types.AdjustmentParameters, error) {
	if DB == nil {
		return nil, nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT
            max_yield_bps, cluster_tolerance_bps, quorum_threshold_bps,
            response_window_seconds, challenge_window_seconds,
            challenge_tolerance_bps, slash_bps, challenger_reward_bps,
            adjustment_cooldown_seconds, shift_factor, prevention_factor
        FROM consensus_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	p := &types.ConsensusParameters{}
	a := &types.AdjustmentParameters{}
	var responseWindowSec, challengeWindowSec, cooldownSec int64

	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&p.MaxYieldBps, &p.ClusterToleranceBps, &p.QuorumThresholdBps,
		&responseWindowSec, &challengeWindowSec,
		&p.ChallengeToleranceBps, &p.SlashBps, &p.ChallengerRewardBps,
		&cooldownSec, &a.ShiftFactor, &a.PreventionFactor,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("no active consensus parameters found for config '%s'", configName)
		}
		return nil, nil, fmt.Errorf("failed to scan active consensus parameters for config '%s': %w", configName, err)
	}

	p.ResponseWindow = time.Duration(responseWindowSec) * time.Second
	p.ChallengeWindow = time.Duration(challengeWindowSec) * time.Second
	a.Cooldown = time.Duration(cooldownSec) * time.Second

	log.Info().Str("config", configName).Msg("Loaded active consensus parameters")
	return p, a, nil
}

// GetActiveConsensusParametersID returns the params_id of the active row, or
// nil when no row is active (a valid state before first boot).
func GetActiveConsensusParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT params_id
        FROM consensus_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var paramsID int64
	row := DB.QueryRow(query, configName)
	err := row.Scan(&paramsID)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debug().Str("config", configName).Msg("No active consensus parameters found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active consensus parameters ID for config '%s': %w", configName, err)
	}

	log.Debug().
		Str("config", configName).
		Int64("params_id", paramsID).
		Msg("Retrieved active consensus parameters ID")

	return &paramsID, nil
}
