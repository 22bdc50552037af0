/*

This file contains the types for per-round yield submissions and the consensus
result produced once a round reaches quorum.

*/

package types

import "time"

// YieldSubmission is one operator's report of an LST's current yield rate.
// Submissions are never mutated; a new round supersedes them.
type YieldSubmission struct {
	Asset        AssetID   `json:"asset"`
	Operator     string    `json:"operator"`
	YieldRateBps int64     `json:"yield_rate_bps"`
	Timestamp    time.Time `json:"timestamp"` // when the evidence was observed
	Evidence     []byte    `json:"evidence,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// ConsensusResult is the outcome of evaluating one round of submissions.
type ConsensusResult struct {
	Asset AssetID `json:"asset"`
	Round uint64  `json:"round"`

	// ConsensusYieldBps is the arithmetic mean of the winning cluster,
	// truncated to an integer bps value.
	ConsensusYieldBps int64 `json:"consensus_yield_bps"`

	// ContributingOperators lists the operators whose submissions formed the
	// winning cluster, sorted lexicographically.
	ContributingOperators []string `json:"contributing_operators"`

	// ClusterSize and TotalOperators record the quorum arithmetic inputs.
	ClusterSize    int `json:"cluster_size"`
	TotalOperators int `json:"total_operators"`

	// DataHash commits to the contributing submissions.
	DataHash string `json:"data_hash"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// TaskResponse records the consensus value for a task. It exists only if
// quorum was reached and is immutable once recorded; a task has at most one.
type TaskResponse struct {
	TaskID                TaskID    `json:"task_id"`
	ConsensusYieldBps     int64     `json:"consensus_yield_bps"`
	ContributingOperators []string  `json:"contributing_operators"`
	DataHash              string    `json:"data_hash"`
	RecordedAt            time.Time `json:"recorded_at"`
}
