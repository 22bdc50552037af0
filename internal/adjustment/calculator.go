/*

This file contains the position-adjustment calculator: pure, deterministic
functions of position state and a consensus drift value. The calculator holds
no mutable state and may be shared across goroutines; serializing the actual
mutation of a position is the tracker's job.

*/

package adjustment

import (
	"time"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// Skip reasons surfaced to callers when a position is not adjusted.
const (
	ReasonNoFinalizedYield = "no finalized yield data"
	ReasonBelowThreshold   = "below threshold"
	ReasonCooldownActive   = "cooldown active"
	ReasonAutoAdjustOff    = "auto-adjust disabled"
)

// Calculator evaluates and computes range adjustments.
type Calculator struct {
	tickShift TickShiftStrategy
	il        ILPreventionStrategy
	cooldown  time.Duration
}

// NewCalculator builds a calculator from the configured parameters using the
// default linear/quadratic strategies.
func NewCalculator(params types.AdjustmentParameters) *Calculator {
	return &Calculator{
		tickShift: LinearTickShift{Factor: params.ShiftFactor},
		il:        QuadraticILPrevention{Factor: params.PreventionFactor},
		cooldown:  params.Cooldown,
	}
}

// NewCalculatorWithStrategies builds a calculator with explicit strategies.
func NewCalculatorWithStrategies(tickShift TickShiftStrategy, il ILPreventionStrategy, cooldown time.Duration) *Calculator {
	return &Calculator{tickShift: tickShift, il: il, cooldown: cooldown}
}

// NeedsAdjustment reports whether a position should be adjusted now, and the
// reason when it should not. driftBps <= 0 means no finalized consensus value
// is available; the position simply reports no adjustment needed.
func (c *Calculator) NeedsAdjustment(position types.Position, pool types.PoolConfig, driftBps int64, now time.Time) (bool, string) {
	if driftBps <= 0 {
		return false, ReasonNoFinalizedYield
	}
	if !position.AutoAdjustEnabled || !pool.AutoAdjustmentEnabled {
		return false, ReasonAutoAdjustOff
	}
	if driftBps < pool.AdjustmentThresholdBps {
		return false, ReasonBelowThreshold
	}
	if now.Before(position.LastAdjustmentAt.Add(c.cooldown)) {
		return false, ReasonCooldownActive
	}
	return true, ""
}

// ComputeNewRange shifts a tick range by the drift. When the LST is the
// primary asset of the pair its appreciation moves the range up; otherwise
// down. Range width is preserved, and zero drift returns the range unchanged.
func (c *Calculator) ComputeNewRange(tickLower, tickUpper, driftBps int64, lstIsPrimary bool) (int64, int64) {
	shift := c.tickShift.Shift(driftBps)
	if !lstIsPrimary {
		shift = -shift
	}
	return tickLower + shift, tickUpper + shift
}

// EstimateImpermanentLossPrevented delegates to the configured strategy.
func (c *Calculator) EstimateImpermanentLossPrevented(position types.Position, driftBps int64) float64 {
	return c.il.Estimate(position.Liquidity, driftBps)
}

// Cooldown exposes the configured adjustment cooldown.
func (c *Calculator) Cooldown() time.Duration {
	return c.cooldown
}
