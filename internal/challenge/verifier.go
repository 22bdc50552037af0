/*

This file contains the challenge verifier: it compares a recorded consensus
value against an independently fetched ground truth, raises disputes while the
challenge window is open, and settles them. A successful challenge slashes the
contributing operators and rewards the challenger; a failed one forfeits the
challenger's bond.

*/

package challenge

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/datafetcher"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/slashing"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// VerifyResult is the outcome of checking one task response against ground
// truth.
type VerifyResult struct {
	Valid            bool  `json:"valid"`
	GroundTruthBps   int64 `json:"ground_truth_bps"`
	GroundTruthStale bool  `json:"ground_truth_stale"`
	DeviationBps     int64 `json:"deviation_bps"`
}

// Verifier drives dispute detection and resolution for one lifecycle.
type Verifier struct {
	logger    zerolog.Logger
	source    datafetcher.YieldSource
	lifecycle *tasks.Lifecycle
	ledger    *slashing.Ledger
	emitter   *events.Emitter
	params    types.ConsensusParameters
}

// NewVerifier wires the verifier to its collaborators.
func NewVerifier(source datafetcher.YieldSource, lifecycle *tasks.Lifecycle, ledger *slashing.Ledger, emitter *events.Emitter, params types.ConsensusParameters) *Verifier {
	return &Verifier{
		logger:    logger.GetForComponent("challenge_verifier"),
		source:    source,
		lifecycle: lifecycle,
		ledger:    ledger,
		emitter:   emitter,
		params:    params,
	}
}

// Verify fetches an independent yield observation for the response's asset as
// of its recording time and compares it against the reported value. A stale
// (latest-value fallback) observation is used with a recorded warning.
func (v *Verifier) Verify(ctx context.Context, task types.Task, response types.TaskResponse) (VerifyResult, error) {
	obs, err := v.source.FetchYield(ctx, task.Asset, response.RecordedAt)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("fetching ground truth for task %d: %w", task.ID, err)
	}
	if obs.Stale {
		v.logger.Warn().
			Int64("taskId", int64(task.ID)).
			Str("asset", string(task.Asset)).
			Time("observationTime", obs.Timestamp).
			Msg("Verifying against stale ground truth (latest-value fallback)")
	}

	deviation := response.ConsensusYieldBps - obs.RateBps
	if deviation < 0 {
		deviation = -deviation
	}
	result := VerifyResult{
		Valid:            deviation <= v.params.ChallengeToleranceBps,
		GroundTruthBps:   obs.RateBps,
		GroundTruthStale: obs.Stale,
		DeviationBps:     deviation,
	}

	v.logger.Debug().
		Int64("taskId", int64(task.ID)).
		Int64("reportedBps", response.ConsensusYieldBps).
		Int64("groundTruthBps", obs.RateBps).
		Int64("deviationBps", deviation).
		Bool("valid", result.Valid).
		Msg("Response verified against ground truth")
	return result, nil
}

// RaiseChallenge disputes a task's recorded value. Only one challenge per
// task is ever accepted: the lifecycle serializes concurrent attempts so the
// first valid one wins and later ones fail with ErrAlreadyChallenged; outside
// the window it fails with ErrWindowExpired.
func (v *Verifier) RaiseChallenge(ctx context.Context, taskID types.TaskID, challenger string, evidenceValueBps int64, bond sdkmath.Int) (*types.Challenge, error) {
	response, err := v.lifecycle.Response(taskID)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("%w: task %d has no recorded response", types.ErrWindowExpired, taskID)
	}

	challenge := types.Challenge{
		TaskID:           taskID,
		Challenger:       challenger,
		ReportedValueBps: response.ConsensusYieldBps,
		EvidenceValueBps: evidenceValueBps,
		Bond:             bond,
	}
	if _, err := v.lifecycle.AcceptChallenge(taskID, challenge); err != nil {
		return nil, err
	}

	accepted, err := v.lifecycle.GetChallenge(taskID)
	if err != nil {
		return nil, err
	}
	v.logger.Info().
		Int64("taskId", int64(taskID)).
		Str("challenger", challenger).
		Int64("reportedBps", challenge.ReportedValueBps).
		Int64("evidenceBps", evidenceValueBps).
		Msg("Challenge raised")
	return accepted, nil
}

// Resolve settles a pending challenge against ground truth.
//
// Success (deviation above tolerance): the task moves to Resolved, each
// contributing operator is slashed and marked inaccurate, and the challenger
// receives the configured share of the slashed total.
//
// Failure (deviation within tolerance): the challenger's bond is forfeited,
// contributing operators are marked accurate, and the task finalizes with the
// original value standing.
//
// A resolution error is terminal for this challenge but never halts the task
// pipeline; the caller logs and moves on.
func (v *Verifier) Resolve(ctx context.Context, taskID types.TaskID) (*types.ChallengeOutcome, error) {
	task, err := v.lifecycle.Get(taskID)
	if err != nil {
		return nil, err
	}
	challenge, err := v.lifecycle.GetChallenge(taskID)
	if err != nil {
		return nil, err
	}
	if challenge == nil || challenge.Status != types.ChallengeStatusPending {
		return nil, fmt.Errorf("task %d has no pending challenge", taskID)
	}
	response, err := v.lifecycle.Response(taskID)
	if err != nil {
		return nil, err
	}

	verdict, err := v.Verify(ctx, task, *response)
	if err != nil {
		return nil, fmt.Errorf("resolving challenge for task %d: %w", taskID, err)
	}

	outcome := types.ChallengeOutcome{
		TaskID:           taskID,
		GroundTruthBps:   verdict.GroundTruthBps,
		GroundTruthStale: verdict.GroundTruthStale,
		DeviationBps:     verdict.DeviationBps,
		TotalSlashed:     sdkmath.ZeroInt(),
		ChallengerReward: sdkmath.ZeroInt(),
	}

	if !verdict.Valid {
		// Challenge succeeds: the recorded value was wrong.
		totalSlashed := sdkmath.ZeroInt()
		for _, operator := range response.ContributingOperators {
			slashed, err := v.ledger.Slash(ctx, operator, v.params.SlashBps)
			if err != nil {
				v.logger.Error().Err(err).
					Int64("taskId", int64(taskID)).
					Str("operator", operator).
					Msg("Failed to slash contributing operator")
				continue
			}
			totalSlashed = totalSlashed.Add(slashed)
			if _, err := v.ledger.RecordAccuracy(ctx, operator, false); err != nil {
				v.logger.Error().Err(err).Str("operator", operator).Msg("Failed to record inaccuracy")
			}
		}

		reward := totalSlashed.Mul(sdkmath.NewInt(v.params.ChallengerRewardBps)).Quo(sdkmath.NewInt(10000))
		if err := v.ledger.Reward(ctx, challenge.Challenger, reward); err != nil {
			v.logger.Error().Err(err).
				Int64("taskId", int64(taskID)).
				Str("challenger", challenge.Challenger).
				Msg("Failed to pay challenger reward")
		}

		if _, err := v.lifecycle.SettleChallenge(taskID, true); err != nil {
			return nil, err
		}
		outcome.Status = types.ChallengeStatusSuccessful
		outcome.TotalSlashed = totalSlashed
		outcome.ChallengerReward = reward
	} else {
		// Challenge fails: the value stands and the bond is forfeited.
		if _, err := v.lifecycle.SettleChallenge(taskID, false); err != nil {
			return nil, err
		}
		for _, operator := range response.ContributingOperators {
			if _, err := v.ledger.RecordAccuracy(ctx, operator, true); err != nil {
				v.logger.Error().Err(err).Str("operator", operator).Msg("Failed to record accuracy")
			}
		}
		v.logger.Info().
			Int64("taskId", int64(taskID)).
			Str("challenger", challenge.Challenger).
			Str("forfeitedBond", challenge.Bond.String()).
			Msg("Challenge failed, bond forfeited")
		outcome.Status = types.ChallengeStatusFailed
	}

	v.emitter.ChallengeResolved(task.Asset, outcome)
	return &outcome, nil
}

// SweepDueTasks drives window-based transitions for an asset: expiring
// quorumless tasks and finalizing unchallenged ones. It returns the ids of
// tasks it transitioned so callers can persist them. Workers call it on a
// cadence; no explicit cancel signal exists, expiry is pure clock comparison.
func (v *Verifier) SweepDueTasks(asset types.AssetID, now time.Time) []types.TaskID {
	var transitioned []types.TaskID
	for _, task := range v.lifecycle.List(asset) {
		switch task.State {
		case types.TaskStateResponseOpen:
			if now.After(task.ResponseWindowEnd) {
				newState, err := v.lifecycle.ExpireIfDue(task.ID)
				if err != nil {
					v.logger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to expire task")
				} else if newState != task.State {
					transitioned = append(transitioned, task.ID)
				}
			}
		case types.TaskStateChallengeOpen:
			if now.After(task.ChallengeWindowEnd) {
				newState, err := v.lifecycle.FinalizeIfUnchallenged(task.ID)
				if err != nil {
					v.logger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to finalize task")
				} else if newState != task.State {
					transitioned = append(transitioned, task.ID)
				}
			}
		}
	}
	return transitioned
}
