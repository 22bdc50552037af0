/*

This file contains the reference data types for the liquid-staking tokens (LSTs)
the system monitors. LSTAsset records are immutable once registered.

*/

package types

import "time"

// AssetID uniquely identifies a tracked LST (e.g. "stETH", "rETH").
type AssetID string

// LSTKind tags the protocol family an LST belongs to. Routing decisions key
// off this tag instead of hardcoded address checks, so adding a new LST is a
// data change.
type LSTKind string

const (
	LSTKindStETH   LSTKind = "STETH"
	LSTKindRETH    LSTKind = "RETH"
	LSTKindCBETH   LSTKind = "CBETH"
	LSTKindSFRXETH LSTKind = "SFRXETH"
	LSTKindCustom  LSTKind = "CUSTOM"
)

// LSTAsset is immutable reference data describing one tracked LST.
type LSTAsset struct {
	ID   AssetID `json:"id"`
	Kind LSTKind `json:"kind"`

	// Expected yield range in basis points. Submissions outside this band are
	// suspicious but not rejected; the hard cap lives in ConsensusParameters.
	MinYieldBps int64 `json:"min_yield_bps"`
	MaxYieldBps int64 `json:"max_yield_bps"`

	// StalenessThreshold is the maximum age of submission evidence before it
	// is rejected with ErrStaleEvidence.
	StalenessThreshold time.Duration `json:"staleness_threshold"`
}

// PoolID identifies a liquidity pool pairing an LST with another asset.
type PoolID uint64

// PoolConfig is set once per pool and editable by an administrator.
type PoolConfig struct {
	PoolID      PoolID  `json:"pool_id"`
	LSTAsset    AssetID `json:"lst_asset"`
	PairedAsset string  `json:"paired_asset"`

	// IsLSTPrimary reports whether the LST is token0 of the pair. It decides
	// the direction tick ranges shift when the LST appreciates.
	IsLSTPrimary bool `json:"is_lst_primary"`

	// AdjustmentThresholdBps is the minimum accumulated drift required before
	// positions in this pool are adjusted. Bounded to [10, 500] bps.
	AdjustmentThresholdBps int64 `json:"adjustment_threshold_bps"`

	AutoAdjustmentEnabled bool `json:"auto_adjustment_enabled"`
}

// PoolConfig threshold bounds.
const (
	MinAdjustmentThresholdBps = 10
	MaxAdjustmentThresholdBps = 500
)

// ValidateThreshold reports whether the pool's adjustment threshold is within
// the permitted [10, 500] bps band.
func (p PoolConfig) ValidateThreshold() bool {
	return p.AdjustmentThresholdBps >= MinAdjustmentThresholdBps &&
		p.AdjustmentThresholdBps <= MaxAdjustmentThresholdBps
}
