/*
This file contains common utility functions for converting between SDK math
types and float64, used by the impermanent-loss estimator and stake math.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrNotFinite      = errors.New("value is not finite")
)

// SDKIntToFloat64 converts an SDK Int to float64. Liquidity and stake values
// in this system fit comfortably in a float64 mantissa for estimation
// purposes; exact settlement math stays in sdkmath.Int.
func SDKIntToFloat64(amount sdkmath.Int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result, err := sdkmath.LegacyNewDecFromInt(amount).Float64()
	if err != nil {
		return 0, fmt.Errorf("conversion failed: %w", err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// ScaleByBps multiplies an SDK Int amount by bps/10000, truncating toward zero.
func ScaleByBps(amount sdkmath.Int, bps int64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if bps < 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("bps cannot be negative: %d", bps)
	}
	return amount.Mul(sdkmath.NewInt(bps)).Quo(sdkmath.NewInt(10000)), nil
}
