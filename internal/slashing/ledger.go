/*

This file contains the slashing ledger: operator accuracy scores and
stake reward/penalty bookkeeping. A slash that would take a stake negative
clamps to zero and flags the operator for registry-level deregistration
rather than erroring.

*/

package slashing

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/utils"
)

// Ledger tracks operator records. Effective stake starts from the registry
// value on first touch and then evolves through slashes and rewards.
type Ledger struct {
	logger   zerolog.Logger
	registry registry.OperatorRegistry

	mu      sync.Mutex
	records map[string]*types.OperatorRecord
}

// NewLedger builds an empty ledger backed by the given registry.
func NewLedger(reg registry.OperatorRegistry) *Ledger {
	return &Ledger{
		logger:   logger.GetForComponent("slashing_ledger"),
		registry: reg,
		records:  make(map[string]*types.OperatorRecord),
	}
}

// recordFor returns the operator's ledger entry, seeding it from the registry
// on first use. New operators start at the maximum accuracy score.
func (l *Ledger) recordFor(ctx context.Context, operator string) (*types.OperatorRecord, error) {
	if rec, ok := l.records[operator]; ok {
		return rec, nil
	}
	stake, err := l.registry.StakeOf(ctx, operator)
	if err != nil {
		return nil, fmt.Errorf("seeding ledger for %s: %w", operator, err)
	}
	rec := &types.OperatorRecord{
		Address:       operator,
		Stake:         stake,
		AccuracyScore: types.MaxAccuracyScore,
	}
	l.records[operator] = rec
	return rec, nil
}

// Record returns a copy of the operator's ledger entry.
func (l *Ledger) Record(ctx context.Context, operator string) (types.OperatorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.recordFor(ctx, operator)
	if err != nil {
		return types.OperatorRecord{}, err
	}
	return *rec, nil
}

// RecordAccuracy updates the operator's accuracy score: +10 capped at 10000
// for an accurate contribution, floor(score * 0.9) for an inaccurate one.
func (l *Ledger) RecordAccuracy(ctx context.Context, operator string, wasAccurate bool) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.recordFor(ctx, operator)
	if err != nil {
		return 0, err
	}

	if wasAccurate {
		rec.AccuracyScore += types.AccuracyRewardPoints
		if rec.AccuracyScore > types.MaxAccuracyScore {
			rec.AccuracyScore = types.MaxAccuracyScore
		}
	} else {
		rec.AccuracyScore = rec.AccuracyScore * types.InaccuracyScoreRetainedPct / 100
	}

	l.logger.Debug().
		Str("operator", operator).
		Bool("accurate", wasAccurate).
		Int64("score", rec.AccuracyScore).
		Msg("Accuracy recorded")
	return rec.AccuracyScore, nil
}

// Slash debits bps/10000 of the operator's effective stake and returns the
// amount actually taken. If the computed debit exceeds the remaining stake,
// the stake clamps to zero and the operator is flagged for deregistration.
func (l *Ledger) Slash(ctx context.Context, operator string, bps int64) (sdkmath.Int, error) {
	if bps < 0 || bps > 10000 {
		return sdkmath.ZeroInt(), fmt.Errorf("slash bps out of range: %d", bps)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.recordFor(ctx, operator)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	debit, err := utils.ScaleByBps(rec.Stake, bps)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("computing slash for %s: %w", operator, err)
	}
	if debit.GT(rec.Stake) {
		debit = rec.Stake
		rec.FlaggedForDeregistration = true
		l.logger.Warn().Str("operator", operator).Msg("Slash exceeds stake, clamping to zero and flagging for deregistration")
	}
	rec.Stake = rec.Stake.Sub(debit)
	if rec.Stake.IsZero() {
		rec.FlaggedForDeregistration = true
	}

	l.logger.Info().
		Str("operator", operator).
		Int64("bps", bps).
		Str("slashed", debit.String()).
		Str("remainingStake", rec.Stake.String()).
		Msg("Operator slashed")
	return debit, nil
}

// Reward credits an amount to the operator's effective stake. Used to pay
// challengers their share of a slash.
func (l *Ledger) Reward(ctx context.Context, operator string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("invalid reward amount for %s", operator)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.recordFor(ctx, operator)
	if err != nil {
		return err
	}
	rec.Stake = rec.Stake.Add(amount)

	l.logger.Info().
		Str("operator", operator).
		Str("reward", amount.String()).
		Str("stake", rec.Stake.String()).
		Msg("Operator rewarded")
	return nil
}

// Records returns a copy of all ledger entries for persistence and reporting.
func (l *Ledger) Records() []types.OperatorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.OperatorRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	return out
}
