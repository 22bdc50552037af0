/*

This file contains the position tracker: an arena of tracked positions
addressed by stable integer ids, each behind its own lock. Health checks are
read-only and may run concurrently; applying an adjustment is serialized per
position so a manual adjustment racing an automatic one never loses updates.

*/

package positions

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/adjustment"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// positionEntry pairs a position with the mutex serializing its mutations.
type positionEntry struct {
	mu       sync.Mutex
	position types.Position
}

// Tracker owns tracked positions and their pool configurations.
type Tracker struct {
	logger  zerolog.Logger
	emitter *events.Emitter
	calc    *adjustment.Calculator

	mu        sync.Mutex
	positions map[types.PositionID]*positionEntry
	pools     map[types.PoolID]types.PoolConfig
	nextID    types.PositionID
	now       func() time.Time
}

// NewTracker builds an empty tracker.
func NewTracker(calc *adjustment.Calculator, emitter *events.Emitter) *Tracker {
	return &Tracker{
		logger:    logger.GetForComponent("position_tracker"),
		emitter:   emitter,
		calc:      calc,
		positions: make(map[types.PositionID]*positionEntry),
		pools:     make(map[types.PoolID]types.PoolConfig),
		nextID:    1,
		now:       time.Now,
	}
}

// WithClock overrides the tracker's time source. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RegisterPool stores or updates a pool configuration. The adjustment
// threshold must lie within [10, 500] bps.
func (t *Tracker) RegisterPool(pool types.PoolConfig) error {
	if !pool.ValidateThreshold() {
		return fmt.Errorf("adjustment threshold %d bps outside [%d, %d] (pool %d)",
			pool.AdjustmentThresholdBps, types.MinAdjustmentThresholdBps, types.MaxAdjustmentThresholdBps, pool.PoolID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pools[pool.PoolID] = pool
	t.logger.Info().
		Uint64("poolId", uint64(pool.PoolID)).
		Str("asset", string(pool.LSTAsset)).
		Int64("thresholdBps", pool.AdjustmentThresholdBps).
		Msg("Pool registered")
	return nil
}

// Pool returns the configuration for a pool id.
func (t *Tracker) Pool(id types.PoolID) (types.PoolConfig, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pool, ok := t.pools[id]
	return pool, ok
}

// Track registers a new position when liquidity is added. TickLower must be
// strictly below TickUpper.
func (t *Tracker) Track(owner string, pool types.PoolID, tickLower, tickUpper int64, liquidity sdkmath.Int, autoAdjust bool) (types.Position, error) {
	if tickLower >= tickUpper {
		return types.Position{}, fmt.Errorf("tick range invalid: lower %d >= upper %d", tickLower, tickUpper)
	}
	t.mu.Lock()
	poolCfg, ok := t.pools[pool]
	if !ok {
		t.mu.Unlock()
		return types.Position{}, fmt.Errorf("unknown pool %d", pool)
	}
	id := t.nextID
	t.nextID++
	entry := &positionEntry{position: types.Position{
		ID:                id,
		Owner:             owner,
		Pool:              pool,
		TickLower:         tickLower,
		TickUpper:         tickUpper,
		Liquidity:         liquidity,
		LSTAsset:          poolCfg.LSTAsset,
		AutoAdjustEnabled: autoAdjust,
	}}
	t.positions[id] = entry
	t.mu.Unlock()

	t.logger.Info().
		Int64("positionId", int64(id)).
		Uint64("poolId", uint64(pool)).
		Str("owner", owner).
		Msg("Position tracked")
	return entry.position, nil
}

// Untrack removes a position when its liquidity is fully withdrawn.
func (t *Tracker) Untrack(id types.PositionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.positions[id]; !ok {
		return fmt.Errorf("%w: %d", types.ErrPositionNotFound, id)
	}
	delete(t.positions, id)
	t.logger.Info().Int64("positionId", int64(id)).Msg("Position untracked")
	return nil
}

// entryFor looks up a position entry.
func (t *Tracker) entryFor(id types.PositionID) (*positionEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrPositionNotFound, id)
	}
	return entry, nil
}

// Get returns a copy of a tracked position.
func (t *Tracker) Get(id types.PositionID) (types.Position, error) {
	entry, err := t.entryFor(id)
	if err != nil {
		return types.Position{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.position, nil
}

// ListByAsset returns copies of all positions whose pool tracks the asset.
func (t *Tracker) ListByAsset(asset types.AssetID) []types.Position {
	t.mu.Lock()
	entries := make([]*positionEntry, 0, len(t.positions))
	for _, e := range t.positions {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	var out []types.Position
	for _, e := range entries {
		e.mu.Lock()
		if e.position.LSTAsset == asset {
			out = append(out, e.position)
		}
		e.mu.Unlock()
	}
	return out
}

// Health computes the read-only health view for a position given the latest
// known drift. Safe to call concurrently with adjustments.
func (t *Tracker) Health(id types.PositionID, driftBps int64) (types.PositionHealth, error) {
	entry, err := t.entryFor(id)
	if err != nil {
		return types.PositionHealth{}, err
	}
	entry.mu.Lock()
	position := entry.position
	entry.mu.Unlock()

	pool, ok := t.Pool(position.Pool)
	if !ok {
		return types.PositionHealth{}, fmt.Errorf("unknown pool %d for position %d", position.Pool, id)
	}

	now := t.now()
	needs, reason := t.calc.NeedsAdjustment(position, pool, driftBps, now)
	return types.PositionHealth{
		PositionID:              id,
		DriftBps:                driftBps,
		NeedsAdjustment:         needs,
		Reason:                  reason,
		ILPreventedEstimate:     t.calc.EstimateImpermanentLossPrevented(position, driftBps),
		TimeSinceLastAdjustment: now.Sub(position.LastAdjustmentAt),
	}, nil
}

// ApplyAdjustment mutates one position for the given drift if it needs
// adjusting, holding the position's lock for the full read-compute-write so
// concurrent attempts cannot interleave. It returns the emitted record, or
// nil with the skip reason when no adjustment applies.
func (t *Tracker) ApplyAdjustment(id types.PositionID, driftBps int64) (*types.AdjustmentRecord, string, error) {
	entry, err := t.entryFor(id)
	if err != nil {
		return nil, "", err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	position := entry.position
	pool, ok := t.Pool(position.Pool)
	if !ok {
		return nil, "", fmt.Errorf("unknown pool %d for position %d", position.Pool, id)
	}

	now := t.now()
	needs, reason := t.calc.NeedsAdjustment(position, pool, driftBps, now)
	if !needs {
		return nil, reason, nil
	}

	newLower, newUpper := t.calc.ComputeNewRange(position.TickLower, position.TickUpper, driftBps, pool.IsLSTPrimary)
	record := types.AdjustmentRecord{
		PositionID:     id,
		Pool:           position.Pool,
		Asset:          position.LSTAsset,
		OldTickLower:   position.TickLower,
		OldTickUpper:   position.TickUpper,
		NewTickLower:   newLower,
		NewTickUpper:   newUpper,
		DriftBps:       driftBps,
		ILPreventedUSD: t.calc.EstimateImpermanentLossPrevented(position, driftBps),
		Timestamp:      now,
	}

	entry.position.TickLower = newLower
	entry.position.TickUpper = newUpper
	entry.position.LastAdjustmentAt = now
	entry.position.AccumulatedYieldBps += driftBps

	t.emitter.PositionAdjusted(record)
	return &record, "", nil
}
