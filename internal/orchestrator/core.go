package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/challenge"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/consensus"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/positions"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/slashing"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/state"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

const (
	// Export constants for use in main.go
	DEFAULT_CONFIG_NAME    = "default_yieldsync"
	DEFAULT_CONFIG_VERSION = 1

	// WatchdogChallenger is the identity the service itself challenges under
	// when its own verification of a recorded value fails.
	WatchdogChallenger = "yieldsync-watchdog"
)

// Orchestrator drives the monitoring pipeline: it opens tasks, collects
// submissions, evaluates quorum, sweeps window transitions, resolves
// disputes and applies position adjustments.
type Orchestrator struct {
	// Core dependencies
	logger    zerolog.Logger
	engine    *consensus.Engine
	lifecycle *tasks.Lifecycle
	verifier  *challenge.Verifier
	tracker   *positions.Tracker
	ledger    *slashing.Ledger
	collector *FeedCollector

	// Configuration
	assets        []types.AssetID
	configName    string
	configVersion int

	// Runtime state
	roundCount int
	openTasks  map[types.AssetID]types.TaskID
}

// Config holds the configuration for creating a new Orchestrator instance
type Config struct {
	Engine        *consensus.Engine
	Lifecycle     *tasks.Lifecycle
	Verifier      *challenge.Verifier
	Tracker       *positions.Tracker
	Ledger        *slashing.Ledger
	Collector     *FeedCollector
	Assets        []types.AssetID
	ConfigName    string
	ConfigVersion int
}

// NewOrchestrator creates an orchestrator with dependency injection
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("orchestrator configuration validation failed: %w", err)
	}

	o := &Orchestrator{
		logger:        logger.GetForComponent("orchestrator"),
		engine:        cfg.Engine,
		lifecycle:     cfg.Lifecycle,
		verifier:      cfg.Verifier,
		tracker:       cfg.Tracker,
		ledger:        cfg.Ledger,
		collector:     cfg.Collector,
		assets:        cfg.Assets,
		configName:    cfg.ConfigName,
		configVersion: cfg.ConfigVersion,
		openTasks:     make(map[types.AssetID]types.TaskID),
	}

	o.logger.Info().
		Str("configName", o.configName).
		Int("configVersion", o.configVersion).
		Int("assets", len(o.assets)).
		Msg("Orchestrator instance created successfully with dependency injection")

	return o, nil
}

// validateConfig validates the orchestrator configuration
func validateConfig(cfg Config) error {
	if cfg.Engine == nil {
		return fmt.Errorf("consensus engine cannot be nil")
	}
	if cfg.Lifecycle == nil {
		return fmt.Errorf("task lifecycle cannot be nil")
	}
	if cfg.Verifier == nil {
		return fmt.Errorf("challenge verifier cannot be nil")
	}
	if cfg.Tracker == nil {
		return fmt.Errorf("position tracker cannot be nil")
	}
	if cfg.Ledger == nil {
		return fmt.Errorf("slashing ledger cannot be nil")
	}
	if cfg.Collector == nil {
		return fmt.Errorf("feed collector cannot be nil")
	}
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("at least one monitored asset is required")
	}
	if cfg.ConfigName == "" {
		return fmt.Errorf("config name cannot be empty")
	}
	if cfg.ConfigVersion <= 0 {
		return fmt.Errorf("config version must be positive")
	}
	return nil
}

// RunLoop starts the main monitoring loop with the specified interval
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration) {
	o.logger.Info().
		Dur("interval", interval).
		Msg("Starting orchestrator main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first round immediately
	o.roundCount++
	o.logger.Info().Int("round", o.roundCount).Msg("Initiating monitoring round")
	o.RunRound(ctx)
	o.logger.Info().Int("round", o.roundCount).Msg("Monitoring round completed")

	// Continue with ticker
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Orchestrator loop stopped due to context cancellation")
			return
		case <-ticker.C:
			o.roundCount++
			o.logger.Info().Int("round", o.roundCount).Msg("Initiating monitoring round")
			o.RunRound(ctx)
			o.logger.Info().Int("round", o.roundCount).Msg("Monitoring round completed")
		}
	}
}

// RunRound executes one complete monitoring round across all assets
func (o *Orchestrator) RunRound(ctx context.Context) {
	roundStartTime := time.Now()

	// Unique round ID for tracing logs across the entire round
	roundID := uuid.New().String()
	roundLogger := o.logger.With().Str("round_id", roundID).Logger()

	roundLogger.Info().Msg("--- Starting Monitoring Round ---")

	roundNumber := o.getRoundNumber()

	for _, asset := range o.assets {
		snapshot := o.runAssetRound(ctx, asset, roundNumber, roundLogger)
		snapshot.RoundNumber = roundNumber
		snapshot.Timestamp = roundStartTime
		if _, err := state.SaveRoundSnapshot(snapshot); err != nil {
			roundLogger.Error().Err(err).Str("asset", string(asset)).Msg("Failed to persist round snapshot")
		}
	}

	// Persist the operator ledger once per round so scores and flags survive
	// restarts.
	if err := state.SaveOperatorRecords(o.ledger.Records()); err != nil {
		roundLogger.Error().Err(err).Msg("Failed to persist operator records")
	}

	roundLogger.Info().
		Dur("duration", time.Since(roundStartTime)).
		Int("roundNumber", roundNumber).
		Msg("--- Monitoring Round Complete ---")
}

// runAssetRound drives one asset through the pipeline stages and returns the
// round snapshot for persistence. Stages are independent: a failure in one
// only skips that stage, never the round.
func (o *Orchestrator) runAssetRound(ctx context.Context, asset types.AssetID, roundNumber int, roundLogger zerolog.Logger) types.RoundSnapshot {
	assetLogger := roundLogger.With().Str("asset", string(asset)).Logger()
	snapshot := types.RoundSnapshot{Asset: asset}

	// --- Step 1: Sweep window transitions on existing tasks ---
	for _, id := range o.verifier.SweepDueTasks(asset, o.engine.Now()) {
		o.persistTask(id, assetLogger)
	}

	// --- Step 2: Verify open responses and resolve disputes ---
	o.verifyAndResolve(ctx, asset, assetLogger)

	// --- Step 3: Ensure an open task and collect submissions ---
	task, collected := o.ensureOpenTask(ctx, asset, assetLogger)
	snapshot.TaskID = task.ID
	snapshot.SubmissionCount = collected

	// --- Step 4: Evaluate quorum and record the response ---
	if task.State == types.TaskStateResponseOpen {
		result, err := o.engine.Evaluate(ctx, asset)
		switch {
		case err == nil:
			if _, err := o.lifecycle.RecordResponse(task.ID, *result); err != nil {
				assetLogger.Warn().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to record consensus response")
			} else {
				snapshot.ConsensusYieldBps = &result.ConsensusYieldBps
				o.persistTask(task.ID, assetLogger)
				delete(o.openTasks, asset)
			}
		case errors.Is(err, types.ErrQuorumNotReached):
			assetLogger.Info().Err(err).Msg("Quorum not reached this round")
		default:
			assetLogger.Error().Err(err).Msg("Consensus evaluation failed")
		}
	}

	// --- Step 5: Apply position adjustments from finalized yield ---
	adjusted, ilPrevented := o.applyAdjustments(asset, assetLogger)
	snapshot.AdjustedPositions = adjusted
	snapshot.ILPreventedUSD = ilPrevented

	if current, err := o.lifecycle.Get(task.ID); err == nil {
		snapshot.TaskState = current.State
	}
	return snapshot
}

// ensureOpenTask returns the asset's current ResponseOpen task, creating one
// (and collecting feeds for it) when none exists. The second return value is
// the number of submissions collected for a newly opened task.
func (o *Orchestrator) ensureOpenTask(ctx context.Context, asset types.AssetID, assetLogger zerolog.Logger) (types.Task, int) {
	if id, ok := o.openTasks[asset]; ok {
		task, err := o.lifecycle.Get(id)
		if err == nil && task.State == types.TaskStateResponseOpen {
			return task, o.engine.Store().Count(asset)
		}
		delete(o.openTasks, asset)
	}

	task := o.lifecycle.CreateTask(asset, o.engine.Params().QuorumThresholdBps)
	o.openTasks[asset] = task.ID
	o.persistTask(task.ID, assetLogger)

	// A new task collects a fresh round. Submissions left over from a
	// consumed round, or from a task that expired without quorum, must not
	// leak into it as duplicates.
	o.engine.Store().BeginNewRound(asset)
	collected := o.collector.Collect(ctx, asset)
	assetLogger.Info().
		Int64("taskId", int64(task.ID)).
		Int("collected", collected).
		Msg("Opened monitoring task and collected feeds")
	return task, collected
}

// verifyAndResolve checks every response still in its challenge window
// against ground truth, raises a watchdog challenge when the recorded value
// deviates beyond tolerance, and settles pending disputes.
func (o *Orchestrator) verifyAndResolve(ctx context.Context, asset types.AssetID, assetLogger zerolog.Logger) {
	for _, task := range o.lifecycle.List(asset) {
		switch task.State {
		case types.TaskStateChallengeOpen:
			response, err := o.lifecycle.Response(task.ID)
			if err != nil || response == nil {
				continue
			}
			verdict, err := o.verifier.Verify(ctx, task, *response)
			if err != nil {
				assetLogger.Warn().Err(err).Int64("taskId", int64(task.ID)).Msg("Ground-truth verification unavailable")
				continue
			}
			if verdict.Valid {
				continue
			}
			if _, err := o.verifier.RaiseChallenge(ctx, task.ID, WatchdogChallenger, verdict.GroundTruthBps, sdkmath.ZeroInt()); err != nil {
				if !errors.Is(err, types.ErrAlreadyChallenged) {
					assetLogger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to raise watchdog challenge")
				}
				continue
			}
			assetLogger.Warn().
				Int64("taskId", int64(task.ID)).
				Int64("reportedBps", response.ConsensusYieldBps).
				Int64("groundTruthBps", verdict.GroundTruthBps).
				Msg("Watchdog challenge raised against recorded value")

		case types.TaskStateChallenged:
			outcome, err := o.verifier.Resolve(ctx, task.ID)
			if err != nil {
				assetLogger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to resolve challenge")
				continue
			}
			o.persistTask(task.ID, assetLogger)
			if chal, err := o.lifecycle.GetChallenge(task.ID); err == nil && chal != nil {
				if err := state.SaveChallenge(*chal, outcome); err != nil {
					assetLogger.Error().Err(err).Int64("taskId", int64(task.ID)).Msg("Failed to persist challenge outcome")
				}
			}
		}
	}
}

// applyAdjustments applies the latest finalized yield to every auto-adjusting
// position of the asset. Drift for a position is the finalized cumulative
// yield minus the yield it has already absorbed.
func (o *Orchestrator) applyAdjustments(asset types.AssetID, assetLogger zerolog.Logger) (int, float64) {
	latestYield, err := state.GetLatestFinalizedYield(asset)
	if err != nil {
		if !errors.Is(err, types.ErrNoFinalizedYield) {
			assetLogger.Error().Err(err).Msg("Failed to load latest finalized yield")
		}
		return 0, 0
	}

	adjusted := 0
	ilPrevented := 0.0
	for _, position := range o.tracker.ListByAsset(asset) {
		drift := latestYield - position.AccumulatedYieldBps
		record, skipReason, err := o.tracker.ApplyAdjustment(position.ID, drift)
		if err != nil {
			assetLogger.Error().Err(err).Int64("positionId", int64(position.ID)).Msg("Adjustment failed")
			continue
		}
		if record == nil {
			assetLogger.Debug().
				Int64("positionId", int64(position.ID)).
				Int64("driftBps", drift).
				Str("reason", skipReason).
				Msg("Adjustment skipped")
			continue
		}
		if _, err := state.SaveAdjustmentRecord(*record); err != nil {
			assetLogger.Error().Err(err).Int64("positionId", int64(position.ID)).Msg("Failed to persist adjustment record")
		}
		adjusted++
		ilPrevented += record.ILPreventedUSD
	}

	if adjusted > 0 {
		assetLogger.Info().
			Int("adjusted", adjusted).
			Float64("ilPreventedUSD", ilPrevented).
			Int64("finalizedYieldBps", latestYield).
			Msg("Position adjustments applied")
	}
	return adjusted, ilPrevented
}

// persistTask saves a task and its response (when recorded) to the database.
func (o *Orchestrator) persistTask(id types.TaskID, assetLogger zerolog.Logger) {
	task, err := o.lifecycle.Get(id)
	if err != nil {
		assetLogger.Error().Err(err).Int64("taskId", int64(id)).Msg("Failed to load task for persistence")
		return
	}
	response, err := o.lifecycle.Response(id)
	if err != nil {
		assetLogger.Error().Err(err).Int64("taskId", int64(id)).Msg("Failed to load response for persistence")
		return
	}
	if err := state.SaveTask(task, response); err != nil {
		assetLogger.Error().Err(err).Int64("taskId", int64(id)).Msg("Failed to persist task")
	}
}

// getRoundNumber increments the persistent round counter, falling back to the
// in-memory count when the database is unavailable.
func (o *Orchestrator) getRoundNumber() int {
	roundNumber, err := state.IncrementRoundNumber()
	if err != nil {
		o.logger.Warn().Err(err).Int("fallback", o.roundCount).Msg("Failed to increment persistent round counter, using in-memory count")
		return o.roundCount
	}
	return roundNumber
}
