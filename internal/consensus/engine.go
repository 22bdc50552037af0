/*

This file contains the consensus engine: submission validation and the
clustering/quorum evaluation that turns one round of operator reports into a
single agreed yield value.

Evaluation is deterministic and arrival-order independent: submissions are
sorted by value before clustering, the largest cluster wins, and ties between
equally sized clusters break toward the lower mean.

*/

package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// AssetResolver maps an asset id to its reference data. config.AssetByID
// satisfies it; tests swap in fixtures.
type AssetResolver func(types.AssetID) types.LSTAsset

// Engine validates submissions and evaluates quorum per asset round.
// It never mutates tasks or positions; callers drive the task lifecycle.
type Engine struct {
	logger   zerolog.Logger
	store    *SubmissionStore
	registry registry.OperatorRegistry
	params   types.ConsensusParameters
	assets   AssetResolver
	now      func() time.Time
}

// NewEngine wires the engine. The clock is injectable for boundary tests.
func NewEngine(reg registry.OperatorRegistry, params types.ConsensusParameters, assets AssetResolver) *Engine {
	return &Engine{
		logger:   logger.GetForComponent("consensus_engine"),
		store:    NewSubmissionStore(),
		registry: reg,
		params:   params,
		assets:   assets,
		now:      time.Now,
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Store exposes the submission store for round management by the orchestrator.
func (e *Engine) Store() *SubmissionStore {
	return e.store
}

// Now reads the engine's clock. Collectors use it so their observation
// timestamps agree with the staleness check.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Params returns the engine's consensus parameters.
func (e *Engine) Params() types.ConsensusParameters {
	return e.params
}

// Submit validates and records one operator's yield report for the asset's
// current round. A rejected submission affects nothing else in the round.
func (e *Engine) Submit(ctx context.Context, asset types.AssetID, operator string, yieldRateBps int64, evidence []byte, timestamp time.Time) error {
	if yieldRateBps <= 0 || yieldRateBps > e.params.MaxYieldBps {
		return fmt.Errorf("%w: %d bps (operator %s, asset %s)", types.ErrInvalidRange, yieldRateBps, operator, asset)
	}

	registered, err := e.registry.IsRegistered(ctx, operator)
	if err != nil {
		return fmt.Errorf("registry lookup for %s: %w", operator, err)
	}
	if !registered {
		return fmt.Errorf("%w: %s", types.ErrOperatorNotRegistered, operator)
	}

	ref := e.assets(asset)
	if age := e.now().Sub(timestamp); age > ref.StalenessThreshold {
		return fmt.Errorf("%w: evidence is %s old, threshold %s (operator %s, asset %s)",
			types.ErrStaleEvidence, age, ref.StalenessThreshold, operator, asset)
	}

	round, err := e.store.Record(types.YieldSubmission{
		Asset:        asset,
		Operator:     operator,
		YieldRateBps: yieldRateBps,
		Timestamp:    timestamp,
		Evidence:     evidence,
		ReceivedAt:   e.now(),
	})
	if err != nil {
		return fmt.Errorf("%w (operator %s, asset %s, round %d)", err, operator, asset, round)
	}

	e.logger.Debug().
		Str("asset", string(asset)).
		Str("operator", operator).
		Int64("yieldRateBps", yieldRateBps).
		Uint64("round", round).
		Msg("Submission recorded")
	return nil
}

// Evaluate clusters the asset's current-round submissions and returns the
// consensus value if the largest cluster covers the quorum threshold of all
// registered operators. It returns ErrQuorumNotReached otherwise and has no
// side effects beyond reading state.
func (e *Engine) Evaluate(ctx context.Context, asset types.AssetID) (*types.ConsensusResult, error) {
	subs, round := e.store.Snapshot(asset)
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: no submissions (asset %s, round %d)", types.ErrQuorumNotReached, asset, round)
	}

	total, err := e.registry.TotalRegisteredOperators(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry operator count: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no registered operators (asset %s)", types.ErrQuorumNotReached, asset)
	}

	cluster := largestCluster(subs, e.params.ClusterToleranceBps)

	// Quorum in integer arithmetic: size/total >= threshold/10000.
	if int64(len(cluster))*10000 < e.params.QuorumThresholdBps*int64(total) {
		return nil, fmt.Errorf("%w: largest cluster %d of %d operators, need %d bps (asset %s, round %d)",
			types.ErrQuorumNotReached, len(cluster), total, e.params.QuorumThresholdBps, asset, round)
	}

	var sum int64
	operators := make([]string, 0, len(cluster))
	for _, sub := range cluster {
		sum += sub.YieldRateBps
		operators = append(operators, sub.Operator)
	}
	sort.Strings(operators)

	result := &types.ConsensusResult{
		Asset:                 asset,
		Round:                 round,
		ConsensusYieldBps:     sum / int64(len(cluster)), // truncated mean
		ContributingOperators: operators,
		ClusterSize:           len(cluster),
		TotalOperators:        total,
		DataHash:              hashCluster(cluster),
		EvaluatedAt:           e.now(),
	}

	e.logger.Info().
		Str("asset", string(asset)).
		Uint64("round", round).
		Int64("consensusYieldBps", result.ConsensusYieldBps).
		Int("clusterSize", result.ClusterSize).
		Int("totalOperators", total).
		Msg("Consensus reached")
	return result, nil
}

// largestCluster finds the biggest group of submissions whose values all lie
// within toleranceBps (as a fraction of the cluster's lowest value) of each
// other. Submissions are sorted by (value, operator) first, so the result is
// independent of arrival order; scanning ascending means the first maximal
// window found is also the one with the lowest mean, which implements the
// tie-break.
func largestCluster(subs []types.YieldSubmission, toleranceBps int64) []types.YieldSubmission {
	sorted := make([]types.YieldSubmission, len(subs))
	copy(sorted, subs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].YieldRateBps != sorted[j].YieldRateBps {
			return sorted[i].YieldRateBps < sorted[j].YieldRateBps
		}
		return sorted[i].Operator < sorted[j].Operator
	})

	bestStart, bestLen := 0, 0
	for i := 0; i < len(sorted); i++ {
		// Pairwise tolerance over a sorted window reduces to comparing the
		// window's extremes against its minimum.
		limit := sorted[i].YieldRateBps + sorted[i].YieldRateBps*toleranceBps/10000
		j := i
		for j < len(sorted) && sorted[j].YieldRateBps <= limit {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
	}
	return sorted[bestStart : bestStart+bestLen]
}

// hashCluster commits to the winning submissions. Input is already sorted by
// (value, operator) so the hash is deterministic.
func hashCluster(cluster []types.YieldSubmission) string {
	h := sha256.New()
	for _, sub := range cluster {
		fmt.Fprintf(h, "%s|%s|%d\n", sub.Asset, sub.Operator, sub.YieldRateBps)
	}
	return hex.EncodeToString(h.Sum(nil))
}
