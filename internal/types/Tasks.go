/*

This file contains the monitoring-task types and the state machine vocabulary
owned by the task lifecycle. Tasks are mutated only through lifecycle
transitions; terminal states are Expired, Finalized and Resolved.

*/

package types

import "time"

// TaskID identifies one monitoring round for one asset.
type TaskID int64

// TaskState enumerates the lifecycle states of a monitoring task.
type TaskState string

const (
	TaskStateCreated       TaskState = "CREATED"
	TaskStateResponseOpen  TaskState = "RESPONSE_OPEN"
	TaskStateResponded     TaskState = "RESPONDED"
	TaskStateExpired       TaskState = "EXPIRED" // terminal, no quorum before window end
	TaskStateChallengeOpen TaskState = "CHALLENGE_OPEN"
	TaskStateChallenged    TaskState = "CHALLENGED"
	TaskStateFinalized     TaskState = "FINALIZED" // terminal, value stands
	TaskStateResolved      TaskState = "RESOLVED"  // terminal, value overturned
)

// Terminal reports whether no further transitions are possible from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateExpired, TaskStateFinalized, TaskStateResolved:
		return true
	}
	return false
}

// Task is one quorum round from creation to finalization or dispute.
type Task struct {
	ID                 TaskID    `json:"id"`
	Asset              AssetID   `json:"asset"`
	QuorumThresholdBps int64     `json:"quorum_threshold_bps"`
	CreatedAt          time.Time `json:"created_at"`
	ResponseWindowEnd  time.Time `json:"response_window_end"`
	ChallengeWindowEnd time.Time `json:"challenge_window_end"`
	State              TaskState `json:"state"`
}
