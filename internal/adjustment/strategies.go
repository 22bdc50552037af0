/*

This file contains the pluggable adjustment strategies. The published
constants (tick shift = drift x 4, IL prevented = liquidity x drift^2 / 1e8
x 0.75) are simplified approximations with no validated economic model behind
them, so both formulas live behind interfaces and are swappable per
deployment.

*/

package adjustment

import (
	sdkmath "cosmossdk.io/math"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/utils"
)

// TickShiftStrategy converts an accumulated yield drift into a tick offset.
type TickShiftStrategy interface {
	Shift(driftBps int64) int64
}

// ILPreventionStrategy estimates the impermanent loss avoided by moving a
// position's range before the drift realizes. Directional and monotonically
// increasing in both drift and liquidity, not an exact pricing model.
type ILPreventionStrategy interface {
	Estimate(liquidity sdkmath.Int, driftBps int64) float64
}

// LinearTickShift shifts ticks proportionally to drift.
type LinearTickShift struct {
	Factor int64
}

func (s LinearTickShift) Shift(driftBps int64) int64 {
	return driftBps * s.Factor
}

// QuadraticILPrevention implements liquidity * driftBps^2 / 1e8 * Factor.
type QuadraticILPrevention struct {
	Factor float64
}

func (s QuadraticILPrevention) Estimate(liquidity sdkmath.Int, driftBps int64) float64 {
	liq, err := utils.SDKIntToFloat64(liquidity)
	if err != nil {
		return 0
	}
	drift := float64(driftBps)
	return liq * drift * drift / 1e8 * s.Factor
}
