/*

This file contains the tracked-position types and the adjustment records the
calculator emits. Positions are created when liquidity is added, mutated only
by the adjustment path, and removed when liquidity is fully withdrawn.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PositionID identifies a tracked concentrated-liquidity position.
type PositionID int64

// Position is one tracked LP position whose range follows the LST's yield
// drift. Invariant: TickLower < TickUpper.
type Position struct {
	ID        PositionID  `json:"id"`
	Owner     string      `json:"owner"`
	Pool      PoolID      `json:"pool"`
	TickLower int64       `json:"tick_lower"`
	TickUpper int64       `json:"tick_upper"`
	Liquidity sdkmath.Int `json:"liquidity"`
	LSTAsset  AssetID     `json:"lst_asset"`

	LastAdjustmentAt    time.Time `json:"last_adjustment_at"`
	AccumulatedYieldBps int64     `json:"accumulated_yield_bps"`
	AutoAdjustEnabled   bool      `json:"auto_adjust_enabled"`
}

// AdjustmentRecord is emitted for every applied range adjustment.
type AdjustmentRecord struct {
	RecordID       int64      `json:"record_id,omitempty"` // auto-incremented by DB
	PositionID     PositionID `json:"position_id"`
	Pool           PoolID     `json:"pool"`
	Asset          AssetID    `json:"asset"`
	OldTickLower   int64      `json:"old_tick_lower"`
	OldTickUpper   int64      `json:"old_tick_upper"`
	NewTickLower   int64      `json:"new_tick_lower"`
	NewTickUpper   int64      `json:"new_tick_upper"`
	DriftBps       int64      `json:"drift_bps"`
	ILPreventedUSD float64    `json:"il_prevented_usd"`
	Timestamp      time.Time  `json:"timestamp"`
}

// PositionHealth is the read-only health view served to callers.
type PositionHealth struct {
	PositionID              PositionID    `json:"position_id"`
	DriftBps                int64         `json:"drift_bps"`
	NeedsAdjustment         bool          `json:"needs_adjustment"`
	Reason                  string        `json:"reason,omitempty"` // populated when NeedsAdjustment is false
	ILPreventedEstimate     float64       `json:"il_prevented_estimate"`
	TimeSinceLastAdjustment time.Duration `json:"time_since_last_adjustment"`
}
