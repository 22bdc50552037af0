package consensus

import (
	"context"
	"fmt"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

const testAsset = types.AssetID("stETH")

func testParams() types.ConsensusParameters {
	return types.ConsensusParameters{
		MaxYieldBps:           50000,
		ClusterToleranceBps:   500,
		QuorumThresholdBps:    6700,
		ResponseWindow:        5 * time.Minute,
		ChallengeWindow:       20 * time.Minute,
		ChallengeToleranceBps: 10,
		SlashBps:              1000,
		ChallengerRewardBps:   5000,
	}
}

func testAssetResolver(types.AssetID) types.LSTAsset {
	return types.LSTAsset{
		ID:                 testAsset,
		Kind:               types.LSTKindStETH,
		MinYieldBps:        100,
		MaxYieldBps:        1500,
		StalenessThreshold: 5 * time.Minute,
	}
}

// newTestEngine builds an engine over n registered operators named op-0..n-1
// with a fixed clock.
func newTestEngine(n int, now time.Time) (*Engine, []string) {
	operators := make(map[string]sdkmath.Int, n)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("op-%d", i)
		operators[name] = sdkmath.NewInt(1000)
		names = append(names, name)
	}
	engine := NewEngine(registry.NewStaticRegistry(operators), testParams(), testAssetResolver).
		WithClock(func() time.Time { return now })
	return engine, names
}

func TestEvaluateSevenOfTenCluster(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(10, now)
	ctx := context.Background()

	// Seven operators agree near 350 bps, three report 500.
	for i := 0; i < 7; i++ {
		require.NoError(t, engine.Submit(ctx, testAsset, ops[i], 350, nil, now))
	}
	for i := 7; i < 10; i++ {
		require.NoError(t, engine.Submit(ctx, testAsset, ops[i], 500, nil, now))
	}

	result, err := engine.Evaluate(ctx, testAsset)
	require.NoError(t, err)
	assert.Equal(t, int64(350), result.ConsensusYieldBps)
	assert.Equal(t, 7, result.ClusterSize)
	assert.Equal(t, 10, result.TotalOperators)
	assert.Len(t, result.ContributingOperators, 7)
	assert.NotContains(t, result.ContributingOperators, ops[7])
}

func TestEvaluateQuorumNotReached(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(10, now)
	ctx := context.Background()

	// Six of ten is below the 67% threshold.
	for i := 0; i < 6; i++ {
		require.NoError(t, engine.Submit(ctx, testAsset, ops[i], 350, nil, now))
	}
	for i := 6; i < 10; i++ {
		require.NoError(t, engine.Submit(ctx, testAsset, ops[i], 350+int64(i)*100, nil, now))
	}

	_, err := engine.Evaluate(ctx, testAsset)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)
}

func TestEvaluateExactQuorumBoundary(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(3, now)
	ctx := context.Background()

	// 2 of 3 = 6666 bps, just under 6700: no quorum.
	require.NoError(t, engine.Submit(ctx, testAsset, ops[0], 350, nil, now))
	require.NoError(t, engine.Submit(ctx, testAsset, ops[1], 351, nil, now))
	_, err := engine.Evaluate(ctx, testAsset)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)

	// The third agreeing operator pushes the cluster to 100%.
	require.NoError(t, engine.Submit(ctx, testAsset, ops[2], 352, nil, now))
	result, err := engine.Evaluate(ctx, testAsset)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ClusterSize)
	// Truncated mean of 350, 351, 352.
	assert.Equal(t, int64(351), result.ConsensusYieldBps)
}

func TestEvaluateTruncatedMean(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(2, now)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, testAsset, ops[0], 350, nil, now))
	require.NoError(t, engine.Submit(ctx, testAsset, ops[1], 351, nil, now))

	result, err := engine.Evaluate(ctx, testAsset)
	require.NoError(t, err)
	// (350+351)/2 truncates to 350.
	assert.Equal(t, int64(350), result.ConsensusYieldBps)
}

func TestLargestClusterTieBreaksToLowerMean(t *testing.T) {
	subs := []types.YieldSubmission{
		{Asset: testAsset, Operator: "op-2", YieldRateBps: 500},
		{Asset: testAsset, Operator: "op-0", YieldRateBps: 100},
		{Asset: testAsset, Operator: "op-3", YieldRateBps: 505},
		{Asset: testAsset, Operator: "op-1", YieldRateBps: 102},
	}

	// Two maximal windows of size two; the lower-valued one must win.
	cluster := largestCluster(subs, 500)
	require.Len(t, cluster, 2)
	assert.Equal(t, int64(100), cluster[0].YieldRateBps)
	assert.Equal(t, int64(102), cluster[1].YieldRateBps)
}

func TestEvaluateDeterministicAcrossArrivalOrder(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	values := []int64{350, 352, 348, 500, 349, 351, 350, 500, 353, 347}

	buildAndEvaluate := func(order []int) *types.ConsensusResult {
		engine, ops := newTestEngine(len(values), now)
		for _, i := range order {
			require.NoError(t, engine.Submit(ctx, testAsset, ops[i], values[i], nil, now))
		}
		result, err := engine.Evaluate(ctx, testAsset)
		require.NoError(t, err)
		return result
	}

	forward := buildAndEvaluate([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	reverse := buildAndEvaluate([]int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0})
	shuffled := buildAndEvaluate([]int{4, 0, 9, 2, 7, 5, 1, 8, 3, 6})

	assert.Equal(t, forward.ConsensusYieldBps, reverse.ConsensusYieldBps)
	assert.Equal(t, forward.ConsensusYieldBps, shuffled.ConsensusYieldBps)
	assert.Equal(t, forward.ContributingOperators, reverse.ContributingOperators)
	assert.Equal(t, forward.DataHash, reverse.DataHash)
	assert.Equal(t, forward.DataHash, shuffled.DataHash)
}

func TestSubmitRejectsInvalidRange(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(1, now)
	ctx := context.Background()

	assert.ErrorIs(t, engine.Submit(ctx, testAsset, ops[0], 0, nil, now), types.ErrInvalidRange)
	assert.ErrorIs(t, engine.Submit(ctx, testAsset, ops[0], -5, nil, now), types.ErrInvalidRange)
	assert.ErrorIs(t, engine.Submit(ctx, testAsset, ops[0], 50001, nil, now), types.ErrInvalidRange)

	// A rejected submission leaves the round untouched.
	assert.Equal(t, 0, engine.Store().Count(testAsset))
}

func TestSubmitRejectsUnregisteredOperator(t *testing.T) {
	now := time.Now()
	engine, _ := newTestEngine(1, now)

	err := engine.Submit(context.Background(), testAsset, "ghost", 350, nil, now)
	assert.ErrorIs(t, err, types.ErrOperatorNotRegistered)
}

func TestSubmitRejectsStaleEvidence(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(1, now)
	ctx := context.Background()

	// Exactly at the threshold is still fresh; one second past is stale.
	fresh := now.Add(-5 * time.Minute)
	stale := now.Add(-5*time.Minute - time.Second)

	assert.NoError(t, engine.Submit(ctx, testAsset, ops[0], 350, nil, fresh))

	engine2, ops2 := newTestEngine(1, now)
	err := engine2.Submit(ctx, testAsset, ops2[0], 350, nil, stale)
	assert.ErrorIs(t, err, types.ErrStaleEvidence)
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(2, now)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, testAsset, ops[0], 350, nil, now))
	err := engine.Submit(ctx, testAsset, ops[0], 360, nil, now)
	assert.ErrorIs(t, err, types.ErrDuplicateSubmission)

	// The original value stands.
	subs, _ := engine.Store().Snapshot(testAsset)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(350), subs[0].YieldRateBps)
}

func TestBeginNewRoundClearsSubmissions(t *testing.T) {
	now := time.Now()
	engine, ops := newTestEngine(2, now)
	ctx := context.Background()

	require.NoError(t, engine.Submit(ctx, testAsset, ops[0], 350, nil, now))
	_, round := engine.Store().Snapshot(testAsset)

	newRound := engine.Store().BeginNewRound(testAsset)
	assert.Equal(t, round+1, newRound)
	assert.Equal(t, 0, engine.Store().Count(testAsset))

	// The same operator may submit again in the new round.
	assert.NoError(t, engine.Submit(ctx, testAsset, ops[0], 355, nil, now))
}

func TestEvaluateEmptyRound(t *testing.T) {
	now := time.Now()
	engine, _ := newTestEngine(3, now)

	_, err := engine.Evaluate(context.Background(), testAsset)
	assert.ErrorIs(t, err, types.ErrQuorumNotReached)
}
