package slashing

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

func newTestLedger(stake int64) *Ledger {
	return NewLedger(registry.NewStaticRegistry(map[string]sdkmath.Int{
		"op-0": sdkmath.NewInt(stake),
	}))
}

func TestRecordSeedsFromRegistry(t *testing.T) {
	ledger := newTestLedger(1000)

	rec, err := ledger.Record(context.Background(), "op-0")
	require.NoError(t, err)
	assert.Equal(t, "1000", rec.Stake.String())
	assert.Equal(t, int64(types.MaxAccuracyScore), rec.AccuracyScore)
	assert.False(t, rec.FlaggedForDeregistration)
}

func TestRecordAccuracyCapAndDecay(t *testing.T) {
	ledger := newTestLedger(1000)
	ctx := context.Background()

	// Accurate at the cap stays at the cap.
	score, err := ledger.RecordAccuracy(ctx, "op-0", true)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), score)

	// One inaccuracy retains 90% of the score.
	score, err = ledger.RecordAccuracy(ctx, "op-0", false)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), score)

	// Recovery is additive, +10 per accurate round.
	score, err = ledger.RecordAccuracy(ctx, "op-0", true)
	require.NoError(t, err)
	assert.Equal(t, int64(9010), score)

	// Decay truncates: 9010 * 90 / 100 = 8109.
	score, err = ledger.RecordAccuracy(ctx, "op-0", false)
	require.NoError(t, err)
	assert.Equal(t, int64(8109), score)
}

func TestSlashDebitsStake(t *testing.T) {
	ledger := newTestLedger(1000)
	ctx := context.Background()

	slashed, err := ledger.Slash(ctx, "op-0", 1000)
	require.NoError(t, err)
	assert.Equal(t, "100", slashed.String())

	rec, err := ledger.Record(ctx, "op-0")
	require.NoError(t, err)
	assert.Equal(t, "900", rec.Stake.String())
	assert.False(t, rec.FlaggedForDeregistration)
}

func TestSlashToZeroFlagsOperator(t *testing.T) {
	ledger := newTestLedger(10)
	ctx := context.Background()

	slashed, err := ledger.Slash(ctx, "op-0", 10000)
	require.NoError(t, err)
	assert.Equal(t, "10", slashed.String())

	rec, err := ledger.Record(ctx, "op-0")
	require.NoError(t, err)
	assert.True(t, rec.Stake.IsZero())
	assert.True(t, rec.FlaggedForDeregistration)
}

func TestSlashRejectsOutOfRangeBps(t *testing.T) {
	ledger := newTestLedger(1000)
	ctx := context.Background()

	_, err := ledger.Slash(ctx, "op-0", -1)
	assert.Error(t, err)
	_, err = ledger.Slash(ctx, "op-0", 10001)
	assert.Error(t, err)
}

func TestRewardCreditsStake(t *testing.T) {
	ledger := newTestLedger(1000)
	ctx := context.Background()

	// Rewarding an address unknown to the registry starts it from zero.
	require.NoError(t, ledger.Reward(ctx, "alice", sdkmath.NewInt(150)))
	rec, err := ledger.Record(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "150", rec.Stake.String())

	assert.Error(t, ledger.Reward(ctx, "alice", sdkmath.NewInt(-5)))
}

func TestRecordsReturnsCopies(t *testing.T) {
	ledger := newTestLedger(1000)
	ctx := context.Background()

	_, err := ledger.Record(ctx, "op-0")
	require.NoError(t, err)

	records := ledger.Records()
	require.Len(t, records, 1)
	records[0].Stake = sdkmath.NewInt(1)

	rec, err := ledger.Record(ctx, "op-0")
	require.NoError(t, err)
	assert.Equal(t, "1000", rec.Stake.String())
}
