/*

This file contains the observability sink: every state transition, submission,
challenge outcome and adjustment is logged as a structured event and counted
in Prometheus. Each emitter owns its own registry so tests can construct
emitters independently; the web server exposes the registry on /metrics.

*/

package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// Emitter fan-outs core events to logs and metrics. A nil emitter is valid
// and drops everything, so hot paths never need nil checks at call sites.
type Emitter struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	transitions *prometheus.CounterVec
	challenges  *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	ilPrevented *prometheus.CounterVec
}

// NewEmitter builds an emitter with a private Prometheus registry.
func NewEmitter() *Emitter {
	e := &Emitter{
		logger:   logger.GetForComponent("events"),
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldsync_submissions_total",
			Help: "Yield submissions recorded, by asset and outcome.",
		}, []string{"asset", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldsync_task_transitions_total",
			Help: "Task lifecycle transitions, by asset and target state.",
		}, []string{"asset", "to_state"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldsync_challenges_total",
			Help: "Resolved challenges, by asset and outcome.",
		}, []string{"asset", "outcome"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldsync_position_adjustments_total",
			Help: "Applied position range adjustments, by asset.",
		}, []string{"asset"}),
		ilPrevented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldsync_il_prevented_usd_total",
			Help: "Estimated impermanent loss prevented, by asset.",
		}, []string{"asset"}),
	}
	e.registry.MustRegister(e.submissions, e.transitions, e.challenges, e.adjustments, e.ilPrevented)
	return e
}

// Registry exposes the emitter's metric registry for the /metrics handler.
func (e *Emitter) Registry() *prometheus.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// SubmissionRecorded counts one submission attempt.
func (e *Emitter) SubmissionRecorded(asset types.AssetID, operator string, yieldRateBps int64, accepted bool) {
	if e == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	e.submissions.WithLabelValues(string(asset), outcome).Inc()
	e.logger.Debug().
		Str("event", "submission").
		Str("asset", string(asset)).
		Str("operator", operator).
		Int64("yieldRateBps", yieldRateBps).
		Str("outcome", outcome).
		Msg("Submission event")
}

// TaskTransition records one lifecycle transition.
func (e *Emitter) TaskTransition(id types.TaskID, asset types.AssetID, from, to types.TaskState) {
	if e == nil {
		return
	}
	e.transitions.WithLabelValues(string(asset), string(to)).Inc()
	e.logger.Info().
		Str("event", "task_transition").
		Int64("taskId", int64(id)).
		Str("asset", string(asset)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Task transition event")
}

// ChallengeResolved records one settled dispute.
func (e *Emitter) ChallengeResolved(asset types.AssetID, outcome types.ChallengeOutcome) {
	if e == nil {
		return
	}
	e.challenges.WithLabelValues(string(asset), string(outcome.Status)).Inc()
	e.logger.Info().
		Str("event", "challenge_resolved").
		Int64("taskId", int64(outcome.TaskID)).
		Str("asset", string(asset)).
		Str("status", string(outcome.Status)).
		Int64("groundTruthBps", outcome.GroundTruthBps).
		Int64("deviationBps", outcome.DeviationBps).
		Str("totalSlashed", outcome.TotalSlashed.String()).
		Str("challengerReward", outcome.ChallengerReward.String()).
		Msg("Challenge outcome event")
}

// PositionAdjusted records one applied range adjustment.
func (e *Emitter) PositionAdjusted(record types.AdjustmentRecord) {
	if e == nil {
		return
	}
	e.adjustments.WithLabelValues(string(record.Asset)).Inc()
	e.ilPrevented.WithLabelValues(string(record.Asset)).Add(record.ILPreventedUSD)
	e.logger.Info().
		Str("event", "position_adjusted").
		Int64("positionId", int64(record.PositionID)).
		Str("asset", string(record.Asset)).
		Int64("oldTickLower", record.OldTickLower).
		Int64("oldTickUpper", record.OldTickUpper).
		Int64("newTickLower", record.NewTickLower).
		Int64("newTickUpper", record.NewTickUpper).
		Int64("driftBps", record.DriftBps).
		Float64("ilPreventedUSD", record.ILPreventedUSD).
		Msg("Adjustment event")
}
