/*

This file contains the built-in LST registry. Each entry carries the expected
yield band and staleness threshold for one tracked token. Adding an LST is a
data change here (or a Custom entry at runtime), not a new code branch.

*/

package config

import (
	"time"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// KnownAssets is the default set of tracked LSTs keyed by asset id.
var KnownAssets = map[types.AssetID]types.LSTAsset{
	"stETH": {
		ID:                 "stETH",
		Kind:               types.LSTKindStETH,
		MinYieldBps:        200, // 2% floor observed across Lido history
		MaxYieldBps:        800,
		StalenessThreshold: 15 * time.Minute,
	},
	"rETH": {
		ID:                 "rETH",
		Kind:               types.LSTKindRETH,
		MinYieldBps:        200,
		MaxYieldBps:        750,
		StalenessThreshold: 15 * time.Minute,
	},
	"cbETH": {
		ID:                 "cbETH",
		Kind:               types.LSTKindCBETH,
		MinYieldBps:        150,
		MaxYieldBps:        700,
		StalenessThreshold: 30 * time.Minute,
	},
	"sfrxETH": {
		ID:                 "sfrxETH",
		Kind:               types.LSTKindSFRXETH,
		MinYieldBps:        250,
		MaxYieldBps:        900,
		StalenessThreshold: 15 * time.Minute,
	},
}

// AssetByID returns the reference data for an asset id, falling back to a
// Custom entry with conservative defaults so unknown LSTs can still be
// monitored.
func AssetByID(id types.AssetID) types.LSTAsset {
	if asset, ok := KnownAssets[id]; ok {
		return asset
	}
	return types.LSTAsset{
		ID:                 id,
		Kind:               types.LSTKindCustom,
		MinYieldBps:        0,
		MaxYieldBps:        2000,
		StalenessThreshold: 10 * time.Minute,
	}
}
