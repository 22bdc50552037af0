/*

This file contains the per-asset submission store for the current round.
Submissions for the same asset arrive concurrently from operator feeds; each
asset round is guarded by its own mutex so quorum evaluation always observes
a consistent submission set.

*/

package consensus

import (
	"sync"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// assetRound holds the current round of submissions for one asset.
type assetRound struct {
	mu          sync.Mutex
	round       uint64
	submissions map[string]types.YieldSubmission // keyed by operator
}

// SubmissionStore owns the per-asset rounds.
type SubmissionStore struct {
	mu     sync.Mutex
	rounds map[types.AssetID]*assetRound
}

// NewSubmissionStore returns an empty store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{rounds: make(map[types.AssetID]*assetRound)}
}

// roundFor returns the round bucket for an asset, creating it on first use.
func (s *SubmissionStore) roundFor(asset types.AssetID) *assetRound {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[asset]
	if !ok {
		r = &assetRound{round: 1, submissions: make(map[string]types.YieldSubmission)}
		s.rounds[asset] = r
	}
	return r
}

// Record stores a submission for the asset's current round. It returns
// ErrDuplicateSubmission when the operator already submitted this round,
// leaving existing state unchanged.
func (s *SubmissionStore) Record(sub types.YieldSubmission) (uint64, error) {
	r := s.roundFor(sub.Asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.submissions[sub.Operator]; exists {
		return r.round, types.ErrDuplicateSubmission
	}
	r.submissions[sub.Operator] = sub
	return r.round, nil
}

// Snapshot returns a copy of the asset's current-round submissions and the
// round number. The copy lets evaluation run without holding the round lock.
func (s *SubmissionStore) Snapshot(asset types.AssetID) ([]types.YieldSubmission, uint64) {
	r := s.roundFor(asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]types.YieldSubmission, 0, len(r.submissions))
	for _, sub := range r.submissions {
		subs = append(subs, sub)
	}
	return subs, r.round
}

// BeginNewRound discards the asset's current submissions and advances the
// round counter. Submissions are never mutated, only superseded.
func (s *SubmissionStore) BeginNewRound(asset types.AssetID) uint64 {
	r := s.roundFor(asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.round++
	r.submissions = make(map[string]types.YieldSubmission)
	return r.round
}

// Count returns the number of submissions recorded for the current round.
func (s *SubmissionStore) Count(asset types.AssetID) int {
	r := s.roundFor(asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions)
}
