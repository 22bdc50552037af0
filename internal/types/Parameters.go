/*

This file contains the tunable parameters for consensus evaluation, dispute
resolution and position adjustment. Different versions of these parameters
can be persisted and activated without a code change.

*/

package types

import "time"

// ConsensusParameters holds the knobs of the yield-consensus and challenge
// state machine. The clustering and quorum values were calibrated against the
// default operator set; treat them as configuration, not invariants.
type ConsensusParameters struct {
	// MaxYieldBps is the hard cap on a single submission (50,000 = 500%).
	// Submissions of 0 or above the cap are rejected with ErrInvalidRange.
	MaxYieldBps int64 `json:"max_yield_bps"`

	// ClusterToleranceBps groups submissions whose pairwise values differ by
	// at most this fraction of the value (500 = 5%).
	ClusterToleranceBps int64 `json:"cluster_tolerance_bps"`

	// QuorumThresholdBps is the minimum share of registered operators the
	// largest cluster must contain (6700 = 67%).
	QuorumThresholdBps int64 `json:"quorum_threshold_bps"`

	// ResponseWindow bounds how long a task collects submissions.
	ResponseWindow time.Duration `json:"response_window"`

	// ChallengeWindow bounds how long a recorded response may be disputed.
	// Default 20 minutes, roughly 100 blocks at a 12-second cadence.
	ChallengeWindow time.Duration `json:"challenge_window"`

	// ChallengeToleranceBps is the maximum deviation between the recorded
	// consensus value and the ground truth before a challenge succeeds.
	ChallengeToleranceBps int64 `json:"challenge_tolerance_bps"`

	// SlashBps is the stake fraction debited from each contributing operator
	// when a challenge succeeds (1000 = 10%).
	SlashBps int64 `json:"slash_bps"`

	// ChallengerRewardBps is the share of the slashed total paid to the
	// challenger (5000 = 50%).
	ChallengerRewardBps int64 `json:"challenger_reward_bps"`
}

// AdjustmentParameters holds the knobs of the position-adjustment calculator.
// The tick-shift and IL formulas themselves are pluggable strategies; these
// values feed the defaults.
type AdjustmentParameters struct {
	// Cooldown is the minimum interval between adjustments of one position.
	Cooldown time.Duration `json:"cooldown"`

	// ShiftFactor scales drift bps into tick units for the linear strategy.
	ShiftFactor int64 `json:"shift_factor"`

	// PreventionFactor scales the quadratic impermanent-loss estimate.
	PreventionFactor float64 `json:"prevention_factor"`
}

// RoundSnapshot is persisted once per orchestrator cycle for observability
// and post-hoc analysis.
type RoundSnapshot struct {
	SnapshotID        int64     `json:"snapshot_id,omitempty"`
	RoundNumber       int       `json:"round_number"`
	Timestamp         time.Time `json:"timestamp"`
	Asset             AssetID   `json:"asset"`
	TaskID            TaskID    `json:"task_id"`
	TaskState         TaskState `json:"task_state"`
	SubmissionCount   int       `json:"submission_count"`
	ConsensusYieldBps *int64    `json:"consensus_yield_bps,omitempty"`
	AdjustedPositions int       `json:"adjusted_positions"`
	ILPreventedUSD    float64   `json:"il_prevented_usd"`
}
