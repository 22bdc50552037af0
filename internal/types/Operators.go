/*

This file contains the operator bookkeeping types mutated by the slashing
ledger.

*/

package types

import sdkmath "cosmossdk.io/math"

// Accuracy score bounds and update rule constants.
const (
	MaxAccuracyScore           = 10000
	AccuracyRewardPoints       = 10 // added per accurate contribution, capped
	InaccuracyScoreRetainedPct = 90 // score keeps 90% on an inaccurate contribution
)

// OperatorRecord tracks one operator's effective stake and accuracy score.
type OperatorRecord struct {
	Address       string      `json:"address"`
	Stake         sdkmath.Int `json:"stake"`
	AccuracyScore int64       `json:"accuracy_score"`

	// FlaggedForDeregistration is set when a slash would have taken the stake
	// negative; the stake is clamped to zero and the registry is expected to
	// deregister the operator.
	FlaggedForDeregistration bool `json:"flagged_for_deregistration"`
}
