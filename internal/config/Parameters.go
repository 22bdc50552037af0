/*

This file contains the default parameters for the consensus engine, the
challenge verifier and the position-adjustment calculator.

The clustering tolerance, quorum threshold and challenge tolerance are
operational defaults, not validated economic constants. They are persisted to
the database so they can be retuned without a redeploy.

*/

package config

import (
	"time"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// DefaultConsensusParameters provides the baseline consensus and dispute
// configuration, used when no active parameters are found in the database
// during initialization.
var DefaultConsensusParameters = types.ConsensusParameters{
	MaxYieldBps: 50000, // 500% hard cap; anything above is a malformed or hostile submission.

	ClusterToleranceBps: 500, // Submissions within 5% of each other count as agreeing.

	QuorumThresholdBps: 6700, // 67% of registered operators must agree before a value is accepted.

	ResponseWindow: 5 * time.Minute,

	ChallengeWindow: 20 * time.Minute, // ~100 blocks at a 12-second cadence.

	ChallengeToleranceBps: 10, // deviations above 10 bps from ground truth overturn the value.

	SlashBps: 1000, // 10% of stake per contributing operator on a successful challenge.

	ChallengerRewardBps: 5000, // challenger receives half of the slashed total.
}

// DefaultAdjustmentParameters provides the baseline adjustment configuration.
// The shift factor and prevention factor are simplified linear/quadratic
// approximations; both feed pluggable strategies rather than hard constants.
var DefaultAdjustmentParameters = types.AdjustmentParameters{
	Cooldown: 21600 * time.Second, // 6 hours between adjustments of one position.

	ShiftFactor: 4,

	PreventionFactor: 0.75,
}
