/*

This file contains the dispute types. A challenge can exist only for a task
with a recorded response, only while the challenge window is open, and is
never reopened once resolved.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// ChallengeStatus enumerates dispute outcomes.
type ChallengeStatus string

const (
	ChallengeStatusPending    ChallengeStatus = "PENDING"
	ChallengeStatusSuccessful ChallengeStatus = "SUCCESSFUL" // reported value overturned
	ChallengeStatusFailed     ChallengeStatus = "FAILED"     // bond forfeited, value stands
)

// Challenge disputes a task's recorded consensus value.
type Challenge struct {
	TaskID           TaskID          `json:"task_id"`
	Challenger       string          `json:"challenger"`
	ReportedValueBps int64           `json:"reported_value_bps"` // the consensus value under dispute
	EvidenceValueBps int64           `json:"evidence_value_bps"` // the challenger's claimed ground truth
	Bond             sdkmath.Int     `json:"bond"`
	Status           ChallengeStatus `json:"status"`
	RaisedAt         time.Time       `json:"raised_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

// ChallengeOutcome summarizes a resolved dispute for observability and
// settlement bookkeeping.
type ChallengeOutcome struct {
	TaskID           TaskID          `json:"task_id"`
	Status           ChallengeStatus `json:"status"`
	GroundTruthBps   int64           `json:"ground_truth_bps"`
	GroundTruthStale bool            `json:"ground_truth_stale"`
	DeviationBps     int64           `json:"deviation_bps"`
	TotalSlashed     sdkmath.Int     `json:"total_slashed"`
	ChallengerReward sdkmath.Int     `json:"challenger_reward"`
}
