package challenge

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/datafetcher"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/slashing"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

const testAsset = types.AssetID("stETH")

// fakeYieldSource returns a fixed observation.
type fakeYieldSource struct {
	rateBps int64
	stale   bool
	err     error
}

func (f *fakeYieldSource) FetchYield(_ context.Context, asset types.AssetID, atTime time.Time) (datafetcher.YieldObservation, error) {
	if f.err != nil {
		return datafetcher.YieldObservation{}, f.err
	}
	return datafetcher.YieldObservation{
		Asset:     asset,
		RateBps:   f.rateBps,
		Timestamp: atTime,
		Stale:     f.stale,
	}, nil
}

type fixture struct {
	clockNow  time.Time
	lifecycle *tasks.Lifecycle
	ledger    *slashing.Ledger
	source    *fakeYieldSource
	verifier  *Verifier
}

func newFixture(t *testing.T, groundTruthBps int64) *fixture {
	t.Helper()

	reg := registry.NewStaticRegistry(map[string]sdkmath.Int{
		"op-0": sdkmath.NewInt(1000),
		"op-1": sdkmath.NewInt(1000),
		"op-2": sdkmath.NewInt(1000),
	})
	params := types.ConsensusParameters{
		MaxYieldBps:           50000,
		ClusterToleranceBps:   500,
		QuorumThresholdBps:    6700,
		ResponseWindow:        5 * time.Minute,
		ChallengeWindow:       20 * time.Minute,
		ChallengeToleranceBps: 10,
		SlashBps:              1000,
		ChallengerRewardBps:   5000,
	}

	f := &fixture{
		clockNow: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		source:   &fakeYieldSource{rateBps: groundTruthBps},
		ledger:   slashing.NewLedger(reg),
	}
	f.lifecycle = tasks.NewLifecycle(params.ResponseWindow, params.ChallengeWindow, nil).
		WithClock(func() time.Time { return f.clockNow })
	f.verifier = NewVerifier(f.source, f.lifecycle, f.ledger, nil, params)
	return f
}

// respondedTask creates a task with a recorded consensus response.
func (f *fixture) respondedTask(t *testing.T, consensusBps int64) types.Task {
	t.Helper()
	task := f.lifecycle.CreateTask(testAsset, 6700)
	_, err := f.lifecycle.RecordResponse(task.ID, types.ConsensusResult{
		Asset:                 testAsset,
		ConsensusYieldBps:     consensusBps,
		ContributingOperators: []string{"op-0", "op-1", "op-2"},
		DataHash:              "abc123",
	})
	require.NoError(t, err)
	updated, err := f.lifecycle.Get(task.ID)
	require.NoError(t, err)
	return updated
}

func TestSuccessfulChallengeSlashesAndRewards(t *testing.T) {
	// Recorded 500 bps against ground truth 420: deviation 80 > 10.
	f := newFixture(t, 420)
	ctx := context.Background()
	task := f.respondedTask(t, 500)

	_, err := f.verifier.RaiseChallenge(ctx, task.ID, "alice", 420, sdkmath.NewInt(100))
	require.NoError(t, err)

	outcome, err := f.verifier.Resolve(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSuccessful, outcome.Status)
	assert.Equal(t, int64(420), outcome.GroundTruthBps)
	assert.Equal(t, int64(80), outcome.DeviationBps)

	// 10% of each 1000 stake: 300 total, 50% of which pays the challenger.
	assert.Equal(t, "300", outcome.TotalSlashed.String())
	assert.Equal(t, "150", outcome.ChallengerReward.String())

	state, err := f.lifecycle.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateResolved, state.State)

	// Operators lose stake and accuracy; the challenger's balance grows.
	for _, operator := range []string{"op-0", "op-1", "op-2"} {
		rec, err := f.ledger.Record(ctx, operator)
		require.NoError(t, err)
		assert.Equal(t, "900", rec.Stake.String())
		assert.Equal(t, int64(9000), rec.AccuracyScore)
	}
	challengerRec, err := f.ledger.Record(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "150", challengerRec.Stake.String())
}

func TestFailedChallengeForfeitsBond(t *testing.T) {
	// Recorded 352 bps against ground truth 350: deviation 2 <= 10.
	f := newFixture(t, 350)
	ctx := context.Background()
	task := f.respondedTask(t, 352)

	_, err := f.verifier.RaiseChallenge(ctx, task.ID, "bob", 350, sdkmath.NewInt(100))
	require.NoError(t, err)

	outcome, err := f.verifier.Resolve(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusFailed, outcome.Status)
	assert.True(t, outcome.TotalSlashed.IsZero())
	assert.True(t, outcome.ChallengerReward.IsZero())

	// The value stands and contributing operators remain whole.
	state, err := f.lifecycle.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFinalized, state.State)

	rec, err := f.ledger.Record(ctx, "op-0")
	require.NoError(t, err)
	assert.Equal(t, "1000", rec.Stake.String())
	assert.Equal(t, int64(types.MaxAccuracyScore), rec.AccuracyScore)
}

func TestVerifyToleranceBoundary(t *testing.T) {
	ctx := context.Background()

	// Deviation exactly at tolerance is valid.
	f := newFixture(t, 340)
	task := f.respondedTask(t, 350)
	response, err := f.lifecycle.Response(task.ID)
	require.NoError(t, err)

	verdict, err := f.verifier.Verify(ctx, task, *response)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, int64(10), verdict.DeviationBps)

	// One bps past tolerance is not.
	f2 := newFixture(t, 339)
	task2 := f2.respondedTask(t, 350)
	response2, err := f2.lifecycle.Response(task2.ID)
	require.NoError(t, err)

	verdict2, err := f2.verifier.Verify(ctx, task2, *response2)
	require.NoError(t, err)
	assert.False(t, verdict2.Valid)
	assert.Equal(t, int64(11), verdict2.DeviationBps)
}

func TestVerifyPropagatesStaleGroundTruth(t *testing.T) {
	f := newFixture(t, 350)
	f.source.stale = true
	task := f.respondedTask(t, 350)
	response, err := f.lifecycle.Response(task.ID)
	require.NoError(t, err)

	verdict, err := f.verifier.Verify(context.Background(), task, *response)
	require.NoError(t, err)
	assert.True(t, verdict.GroundTruthStale)
	assert.True(t, verdict.Valid)
}

func TestOnlyFirstChallengeAccepted(t *testing.T) {
	f := newFixture(t, 420)
	ctx := context.Background()
	task := f.respondedTask(t, 500)

	_, err := f.verifier.RaiseChallenge(ctx, task.ID, "alice", 420, sdkmath.NewInt(100))
	require.NoError(t, err)

	_, err = f.verifier.RaiseChallenge(ctx, task.ID, "bob", 421, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrAlreadyChallenged)

	chal, err := f.lifecycle.GetChallenge(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", chal.Challenger)
}

func TestRaiseChallengeOutsideWindowFails(t *testing.T) {
	f := newFixture(t, 420)
	ctx := context.Background()
	task := f.respondedTask(t, 500)

	f.clockNow = f.clockNow.Add(20*time.Minute + time.Second)
	_, err := f.verifier.RaiseChallenge(ctx, task.ID, "alice", 420, sdkmath.NewInt(100))
	assert.ErrorIs(t, err, types.ErrWindowExpired)
}

func TestResolveWithoutPendingChallengeFails(t *testing.T) {
	f := newFixture(t, 420)
	task := f.respondedTask(t, 500)

	_, err := f.verifier.Resolve(context.Background(), task.ID)
	assert.Error(t, err)
}

func TestSweepDueTasks(t *testing.T) {
	f := newFixture(t, 350)

	quorumless := f.lifecycle.CreateTask(testAsset, 6700)
	responded := f.respondedTask(t, 350)

	// Before any window ends the sweep does nothing.
	assert.Empty(t, f.verifier.SweepDueTasks(testAsset, f.clockNow))

	// Past the response window the quorumless task expires.
	f.clockNow = f.clockNow.Add(5*time.Minute + time.Second)
	transitioned := f.verifier.SweepDueTasks(testAsset, f.clockNow)
	assert.Equal(t, []types.TaskID{quorumless.ID}, transitioned)

	state, err := f.lifecycle.Get(quorumless.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateExpired, state.State)

	// Past the challenge window the responded task finalizes.
	f.clockNow = f.clockNow.Add(20 * time.Minute)
	transitioned = f.verifier.SweepDueTasks(testAsset, f.clockNow)
	assert.Equal(t, []types.TaskID{responded.ID}, transitioned)

	state, err = f.lifecycle.Get(responded.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFinalized, state.State)
}
