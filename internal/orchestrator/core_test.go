package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/adjustment"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/challenge"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/consensus"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/datafetcher"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/positions"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/slashing"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/tasks"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

const testAsset = types.AssetID("stETH")

func testConsensusParams() types.ConsensusParameters {
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

// queuedYieldSource pops one scripted value per fetch and repeats the last,
// so concurrent collector workers can be fed diverging or unanimous reports.
type queuedYieldSource struct {
	mu   sync.Mutex
	vals []int64
}

func (s *queuedYieldSource) FetchYield(_ context.Context, asset types.AssetID, atTime time.Time) (datafetcher.YieldObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[0]
	if len(s.vals) > 1 {
		s.vals = s.vals[1:]
	}
	return datafetcher.YieldObservation{Asset: asset, RateBps: v, Timestamp: atTime, Proof: "obs"}, nil
}

func (s *queuedYieldSource) set(vals ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals = vals
}

type pipelineFixture struct {
	clockNow  time.Time
	source    *queuedYieldSource
	engine    *consensus.Engine
	lifecycle *tasks.Lifecycle
	orch      *Orchestrator
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		clockNow: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		source:   &queuedYieldSource{},
	}
	clock := func() time.Time { return f.clockNow }

	reg := registry.NewStaticRegistry(map[string]sdkmath.Int{
		"op-0": sdkmath.NewInt(1000),
		"op-1": sdkmath.NewInt(1000),
		"op-2": sdkmath.NewInt(1000),
	})
	params := testConsensusParams()
	f.engine = consensus.NewEngine(reg, params, testAssetResolver).WithClock(clock)
	f.lifecycle = tasks.NewLifecycle(params.ResponseWindow, params.ChallengeWindow, nil).WithClock(clock)
	ledger := slashing.NewLedger(reg)
	verifier := challenge.NewVerifier(f.source, f.lifecycle, ledger, nil, params)
	tracker := positions.NewTracker(adjustment.NewCalculator(types.AdjustmentParameters{
		Cooldown:         21600 * time.Second,
		ShiftFactor:      4,
		PreventionFactor: 0.75,
	}), nil)
	collector := NewFeedCollector(f.engine, reg, f.source, nil)

	orch, err := NewOrchestrator(Config{
		Engine:        f.engine,
		Lifecycle:     f.lifecycle,
		Verifier:      verifier,
		Tracker:       tracker,
		Ledger:        ledger,
		Collector:     collector,
		Assets:        []types.AssetID{testAsset},
		ConfigName:    "test",
		ConfigVersion: 1,
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestRoundReachesConsensusAndOpensChallengeWindow(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.set(350)

	f.orch.RunRound(context.Background())

	open := f.lifecycle.List(testAsset)
	require.Len(t, open, 1)
	assert.Equal(t, types.TaskStateChallengeOpen, open[0].State)

	response, err := f.lifecycle.Response(open[0].ID)
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, int64(350), response.ConsensusYieldBps)
	assert.Len(t, response.ContributingOperators, 3)
}

func TestExpiredTaskGetsFreshRoundOnRetry(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// Round 1: the operators diverge, no cluster reaches quorum.
	f.source.set(1000, 20000, 40000)
	f.orch.RunRound(ctx)

	open := f.lifecycle.List(testAsset)
	require.Len(t, open, 1)
	first := open[0]
	assert.Equal(t, types.TaskStateResponseOpen, first.State)
	assert.Equal(t, 3, f.engine.Store().Count(testAsset))

	// The response window lapses, then the operators agree unanimously.
	f.clockNow = f.clockNow.Add(5*time.Minute + time.Second)
	f.source.set(350)
	f.orch.RunRound(ctx)

	expired, err := f.lifecycle.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateExpired, expired.State)

	// The replacement task must collect a fresh round: the diverged
	// submissions are gone, the unanimous ones are accepted, and quorum
	// is reached.
	remaining := f.lifecycle.List(testAsset)
	require.Len(t, remaining, 1)
	replacement := remaining[0]
	assert.NotEqual(t, first.ID, replacement.ID)
	assert.Equal(t, types.TaskStateChallengeOpen, replacement.State)

	response, err := f.lifecycle.Response(replacement.ID)
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, int64(350), response.ConsensusYieldBps)
	assert.Len(t, response.ContributingOperators, 3)
}
