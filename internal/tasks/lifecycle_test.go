package tasks

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

const testAsset = types.AssetID("stETH")

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestLifecycle() (*Lifecycle, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	lc := NewLifecycle(5*time.Minute, 20*time.Minute, nil).WithClock(clock.Now)
	return lc, clock
}

func testResult() types.ConsensusResult {
	return types.ConsensusResult{
		Asset:                 testAsset,
		ConsensusYieldBps:     350,
		ContributingOperators: []string{"op-0", "op-1", "op-2"},
		ClusterSize:           3,
		TotalOperators:        4,
		DataHash:              "abc123",
	}
}

func TestCreateTaskOpensResponseWindow(t *testing.T) {
	lc, clock := newTestLifecycle()

	task := lc.CreateTask(testAsset, 6700)
	assert.Equal(t, types.TaskStateResponseOpen, task.State)
	assert.Equal(t, clock.now, task.CreatedAt)
	assert.Equal(t, clock.now.Add(5*time.Minute), task.ResponseWindowEnd)
	assert.False(t, task.State.Terminal())
}

func TestRecordResponseOpensChallengeWindow(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	state, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallengeOpen, state)

	updated, err := lc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(20*time.Minute), updated.ChallengeWindowEnd)

	response, err := lc.Response(task.ID)
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, int64(350), response.ConsensusYieldBps)
}

func TestRecordResponseIsIdempotent(t *testing.T) {
	lc, _ := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)

	other := testResult()
	other.ConsensusYieldBps = 999
	state, err := lc.RecordResponse(task.ID, other)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallengeOpen, state)

	// The first response stands.
	response, err := lc.Response(task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(350), response.ConsensusYieldBps)
}

func TestRecordResponseAfterWindowFails(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	clock.now = clock.now.Add(5*time.Minute + time.Second)
	_, err := lc.RecordResponse(task.ID, testResult())
	assert.ErrorIs(t, err, types.ErrWindowExpired)
}

func TestExpireIfDue(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	// Early expiry is a no-op.
	state, err := lc.ExpireIfDue(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateResponseOpen, state)

	clock.now = clock.now.Add(5*time.Minute + time.Second)
	state, err = lc.ExpireIfDue(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateExpired, state)
	assert.True(t, state.Terminal())

	// Repeating the transition is a no-op.
	state, err = lc.ExpireIfDue(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateExpired, state)
}

func TestExpireDoesNotTouchRespondedTask(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)

	clock.now = clock.now.Add(6 * time.Minute)
	state, err := lc.ExpireIfDue(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallengeOpen, state)
}

func TestFinalizeIfUnchallenged(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)
	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)

	// Inside the challenge window: no-op.
	state, err := lc.FinalizeIfUnchallenged(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallengeOpen, state)

	clock.now = clock.now.Add(20*time.Minute + time.Second)
	state, err = lc.FinalizeIfUnchallenged(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFinalized, state)
	assert.True(t, state.Terminal())
}

func TestAcceptChallengeFirstWins(t *testing.T) {
	lc, _ := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)
	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)

	first := types.Challenge{Challenger: "alice", EvidenceValueBps: 420, Bond: sdkmath.NewInt(100)}
	state, err := lc.AcceptChallenge(task.ID, first)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallenged, state)

	second := types.Challenge{Challenger: "bob", EvidenceValueBps: 410, Bond: sdkmath.NewInt(100)}
	_, err = lc.AcceptChallenge(task.ID, second)
	assert.ErrorIs(t, err, types.ErrAlreadyChallenged)

	accepted, err := lc.GetChallenge(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", accepted.Challenger)
	assert.Equal(t, types.ChallengeStatusPending, accepted.Status)
}

func TestAcceptChallengeAfterWindowFails(t *testing.T) {
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)
	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)

	clock.now = clock.now.Add(20*time.Minute + time.Second)
	challenge := types.Challenge{Challenger: "alice", EvidenceValueBps: 420, Bond: sdkmath.NewInt(100)}
	_, err = lc.AcceptChallenge(task.ID, challenge)
	assert.ErrorIs(t, err, types.ErrWindowExpired)
}

func TestAcceptChallengeWindowBoundary(t *testing.T) {
	challenge := types.Challenge{Challenger: "alice", EvidenceValueBps: 420, Bond: sdkmath.NewInt(100)}

	// One second inside the window still accepts.
	lc, clock := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)
	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)
	clock.now = clock.now.Add(20*time.Minute - time.Second)
	state, err := lc.AcceptChallenge(task.ID, challenge)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateChallenged, state)

	// Exactly at the window end it is rejected.
	lc, clock = newTestLifecycle()
	task = lc.CreateTask(testAsset, 6700)
	_, err = lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)
	clock.now = clock.now.Add(20 * time.Minute)
	_, err = lc.AcceptChallenge(task.ID, challenge)
	assert.ErrorIs(t, err, types.ErrWindowExpired)
}

func TestAcceptChallengeWithoutResponseFails(t *testing.T) {
	lc, _ := newTestLifecycle()
	task := lc.CreateTask(testAsset, 6700)

	challenge := types.Challenge{Challenger: "alice", EvidenceValueBps: 420, Bond: sdkmath.NewInt(100)}
	_, err := lc.AcceptChallenge(task.ID, challenge)
	assert.ErrorIs(t, err, types.ErrWindowExpired)
}

func TestSettleChallenge(t *testing.T) {
	lc, _ := newTestLifecycle()

	// Successful challenge resolves the task.
	task := lc.CreateTask(testAsset, 6700)
	_, err := lc.RecordResponse(task.ID, testResult())
	require.NoError(t, err)
	_, err = lc.AcceptChallenge(task.ID, types.Challenge{Challenger: "alice", Bond: sdkmath.NewInt(100)})
	require.NoError(t, err)

	state, err := lc.SettleChallenge(task.ID, true)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateResolved, state)

	chal, err := lc.GetChallenge(task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSuccessful, chal.Status)
	require.NotNil(t, chal.ResolvedAt)

	// Failed challenge finalizes with the value standing.
	task2 := lc.CreateTask(testAsset, 6700)
	_, err = lc.RecordResponse(task2.ID, testResult())
	require.NoError(t, err)
	_, err = lc.AcceptChallenge(task2.ID, types.Challenge{Challenger: "bob", Bond: sdkmath.NewInt(100)})
	require.NoError(t, err)

	state, err = lc.SettleChallenge(task2.ID, false)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFinalized, state)

	// Settling again is a no-op; the challenge is never reopened.
	state, err = lc.SettleChallenge(task2.ID, true)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFinalized, state)
}

func TestGetUnknownTask(t *testing.T) {
	lc, _ := newTestLifecycle()
	_, err := lc.Get(types.TaskID(42))
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestListReturnsNonTerminalTasksForAsset(t *testing.T) {
	lc, clock := newTestLifecycle()

	open := lc.CreateTask(testAsset, 6700)
	expired := lc.CreateTask(testAsset, 6700)
	other := lc.CreateTask(types.AssetID("rETH"), 6700)

	clock.now = clock.now.Add(5*time.Minute + time.Second)
	_, err := lc.ExpireIfDue(expired.ID)
	require.NoError(t, err)

	// open also expired by the clock move, so re-create a fresh one.
	fresh := lc.CreateTask(testAsset, 6700)

	listed := lc.List(testAsset)
	ids := make([]types.TaskID, 0, len(listed))
	for _, task := range listed {
		ids = append(ids, task.ID)
	}
	assert.Contains(t, ids, open.ID) // still ResponseOpen until swept
	assert.Contains(t, ids, fresh.ID)
	assert.NotContains(t, ids, expired.ID)
	assert.NotContains(t, ids, other.ID)
}
