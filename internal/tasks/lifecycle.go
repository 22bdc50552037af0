/*

This file contains the task lifecycle state machine. A task owns one
monitoring round from creation to finalization or dispute:

  Created -> ResponseOpen -> Responded -> ChallengeOpen -> Finalized
                |                             |
                +-> Expired                   +-> Challenged -> Resolved
                                                           \-> Finalized

Every transition is a single atomic operation keyed by task id and serialized
by a per-task mutex. Repeating a transition that already happened is a no-op
returning the current state, so the machine is idempotent under retries.

*/

package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// taskEntry pairs a task with its response, its (at most one) challenge and
// the mutex serializing its transitions.
type taskEntry struct {
	mu        sync.Mutex
	task      types.Task
	response  *types.TaskResponse
	challenge *types.Challenge
}

// Lifecycle is the arena of tasks addressed by stable integer ids.
type Lifecycle struct {
	logger  zerolog.Logger
	emitter *events.Emitter

	mu     sync.Mutex
	tasks  map[types.TaskID]*taskEntry
	nextID types.TaskID

	responseWindow  time.Duration
	challengeWindow time.Duration
	now             func() time.Time
}

// NewLifecycle builds an empty task arena with the given window lengths.
func NewLifecycle(responseWindow, challengeWindow time.Duration, emitter *events.Emitter) *Lifecycle {
	return &Lifecycle{
		logger:          logger.GetForComponent("task_lifecycle"),
		emitter:         emitter,
		tasks:           make(map[types.TaskID]*taskEntry),
		nextID:          1,
		responseWindow:  responseWindow,
		challengeWindow: challengeWindow,
		now:             time.Now,
	}
}

// WithClock overrides the lifecycle's time source. Intended for tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// CreateTask opens a new monitoring task for an asset. The response window
// opens immediately.
func (l *Lifecycle) CreateTask(asset types.AssetID, quorumThresholdBps int64) types.Task {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	now := l.now()
	entry := &taskEntry{task: types.Task{
		ID:                 id,
		Asset:              asset,
		QuorumThresholdBps: quorumThresholdBps,
		CreatedAt:          now,
		ResponseWindowEnd:  now.Add(l.responseWindow),
		State:              types.TaskStateResponseOpen,
	}}
	l.tasks[id] = entry
	l.mu.Unlock()

	l.logger.Info().
		Int64("taskId", int64(id)).
		Str("asset", string(asset)).
		Time("responseWindowEnd", entry.task.ResponseWindowEnd).
		Msg("Task created, response window open")
	l.emitter.TaskTransition(id, asset, types.TaskStateCreated, types.TaskStateResponseOpen)
	return entry.task
}

// entryFor looks up a task entry.
func (l *Lifecycle) entryFor(id types.TaskID) (*taskEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrTaskNotFound, id)
	}
	return entry, nil
}

// Get returns a copy of the task.
func (l *Lifecycle) Get(id types.TaskID) (types.Task, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return types.Task{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task, nil
}

// Response returns the task's recorded response, if any.
func (l *Lifecycle) Response(id types.TaskID) (*types.TaskResponse, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.response == nil {
		return nil, nil
	}
	resp := *entry.response
	return &resp, nil
}

// GetChallenge returns the task's challenge, if any.
func (l *Lifecycle) GetChallenge(id types.TaskID) (*types.Challenge, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.challenge == nil {
		return nil, nil
	}
	ch := *entry.challenge
	return &ch, nil
}

// List returns copies of all non-terminal tasks for an asset.
func (l *Lifecycle) List(asset types.AssetID) []types.Task {
	l.mu.Lock()
	entries := make([]*taskEntry, 0, len(l.tasks))
	for _, e := range l.tasks {
		entries = append(entries, e)
	}
	l.mu.Unlock()

	var out []types.Task
	for _, e := range entries {
		e.mu.Lock()
		if e.task.Asset == asset && !e.task.State.Terminal() {
			out = append(out, e.task)
		}
		e.mu.Unlock()
	}
	return out
}

// RecordResponse transitions ResponseOpen -> Responded -> ChallengeOpen with
// the quorum result. A task has at most one response: recording again is a
// no-op returning the current state. After the response window it returns
// ErrWindowExpired; the task will expire on the next sweep.
func (l *Lifecycle) RecordResponse(id types.TaskID, result types.ConsensusResult) (types.TaskState, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.response != nil {
		return entry.task.State, nil // idempotent retry
	}
	if entry.task.State != types.TaskStateResponseOpen {
		return entry.task.State, nil
	}
	now := l.now()
	if now.After(entry.task.ResponseWindowEnd) {
		return entry.task.State, fmt.Errorf("%w: response window ended %s (task %d)",
			types.ErrWindowExpired, entry.task.ResponseWindowEnd, id)
	}

	entry.response = &types.TaskResponse{
		TaskID:                id,
		ConsensusYieldBps:     result.ConsensusYieldBps,
		ContributingOperators: result.ContributingOperators,
		DataHash:              result.DataHash,
		RecordedAt:            now,
	}
	entry.task.State = types.TaskStateChallengeOpen
	entry.task.ChallengeWindowEnd = now.Add(l.challengeWindow)

	l.logger.Info().
		Int64("taskId", int64(id)).
		Str("asset", string(entry.task.Asset)).
		Int64("consensusYieldBps", result.ConsensusYieldBps).
		Time("challengeWindowEnd", entry.task.ChallengeWindowEnd).
		Msg("Response recorded, challenge window open")
	l.emitter.TaskTransition(id, entry.task.Asset, types.TaskStateResponded, types.TaskStateChallengeOpen)
	return entry.task.State, nil
}

// ExpireIfDue moves a quorumless ResponseOpen task to Expired once its window
// has passed. Calling it early, repeatedly, or on a progressed task is a no-op.
func (l *Lifecycle) ExpireIfDue(id types.TaskID) (types.TaskState, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.State != types.TaskStateResponseOpen || !l.now().After(entry.task.ResponseWindowEnd) {
		return entry.task.State, nil
	}
	entry.task.State = types.TaskStateExpired
	l.logger.Info().Int64("taskId", int64(id)).Str("asset", string(entry.task.Asset)).Msg("Task expired without quorum")
	l.emitter.TaskTransition(id, entry.task.Asset, types.TaskStateResponseOpen, types.TaskStateExpired)
	return entry.task.State, nil
}

// FinalizeIfUnchallenged moves ChallengeOpen -> Finalized once the challenge
// window has passed with no accepted challenge. No-op otherwise.
func (l *Lifecycle) FinalizeIfUnchallenged(id types.TaskID) (types.TaskState, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.State != types.TaskStateChallengeOpen || !l.now().After(entry.task.ChallengeWindowEnd) {
		return entry.task.State, nil
	}
	entry.task.State = types.TaskStateFinalized
	l.logger.Info().Int64("taskId", int64(id)).Str("asset", string(entry.task.Asset)).Msg("Task finalized unchallenged")
	l.emitter.TaskTransition(id, entry.task.Asset, types.TaskStateChallengeOpen, types.TaskStateFinalized)
	return entry.task.State, nil
}

// AcceptChallenge atomically records the first valid challenge and moves the
// task to Challenged. Later attempts fail with ErrAlreadyChallenged; attempts
// outside the challenge window fail with ErrWindowExpired.
func (l *Lifecycle) AcceptChallenge(id types.TaskID, challenge types.Challenge) (types.TaskState, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.challenge != nil {
		return entry.task.State, fmt.Errorf("%w (task %d)", types.ErrAlreadyChallenged, id)
	}
	if entry.task.State != types.TaskStateChallengeOpen {
		return entry.task.State, fmt.Errorf("%w: task %d is %s", types.ErrWindowExpired, id, entry.task.State)
	}
	// The window is half-open: the end instant itself no longer accepts.
	if !l.now().Before(entry.task.ChallengeWindowEnd) {
		return entry.task.State, fmt.Errorf("%w: challenge window ended %s (task %d)",
			types.ErrWindowExpired, entry.task.ChallengeWindowEnd, id)
	}

	challenge.TaskID = id
	challenge.Status = types.ChallengeStatusPending
	challenge.RaisedAt = l.now()
	entry.challenge = &challenge
	entry.task.State = types.TaskStateChallenged

	l.logger.Info().
		Int64("taskId", int64(id)).
		Str("asset", string(entry.task.Asset)).
		Str("challenger", challenge.Challenger).
		Msg("Challenge accepted")
	l.emitter.TaskTransition(id, entry.task.Asset, types.TaskStateChallengeOpen, types.TaskStateChallenged)
	return entry.task.State, nil
}

// SettleChallenge records the dispute outcome: a successful challenge moves
// the task to Resolved (value overturned), a failed one back to Finalized
// (value stands). Settling an already settled task is a no-op. Challenges are
// never reopened.
func (l *Lifecycle) SettleChallenge(id types.TaskID, successful bool) (types.TaskState, error) {
	entry, err := l.entryFor(id)
	if err != nil {
		return "", err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.task.State != types.TaskStateChallenged {
		return entry.task.State, nil
	}
	now := l.now()
	entry.challenge.ResolvedAt = &now
	if successful {
		entry.challenge.Status = types.ChallengeStatusSuccessful
		entry.task.State = types.TaskStateResolved
	} else {
		entry.challenge.Status = types.ChallengeStatusFailed
		entry.task.State = types.TaskStateFinalized
	}

	l.logger.Info().
		Int64("taskId", int64(id)).
		Str("asset", string(entry.task.Asset)).
		Bool("successful", successful).
		Str("finalState", string(entry.task.State)).
		Msg("Challenge settled")
	l.emitter.TaskTransition(id, entry.task.Asset, types.TaskStateChallenged, entry.task.State)
	return entry.task.State, nil
}
