/*

This file contains the shared error taxonomy. Packages wrap these sentinels
with fmt.Errorf("...: %w", ...) so callers can match with errors.Is while
logs keep the task/asset/operator context.

*/

package types

import "errors"

var (
	// ErrInvalidRange rejects a yield submission of 0 bps or above the hard cap.
	ErrInvalidRange = errors.New("yield rate outside valid range")

	// ErrDuplicateSubmission rejects a second submission by the same operator
	// for the same asset and round.
	ErrDuplicateSubmission = errors.New("operator already submitted this round")

	// ErrStaleEvidence rejects a submission whose evidence timestamp is older
	// than the asset's staleness threshold.
	ErrStaleEvidence = errors.New("submission evidence is stale")

	// ErrOperatorNotRegistered rejects a submission from an unknown operator.
	ErrOperatorNotRegistered = errors.New("operator is not registered")

	// ErrQuorumNotReached indicates the current round has no cluster large
	// enough to reach consensus. The task stays in its current state.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrWindowExpired rejects an operation after its response or challenge
	// window closed.
	ErrWindowExpired = errors.New("window expired")

	// ErrAlreadyChallenged rejects a second challenge for a task.
	ErrAlreadyChallenged = errors.New("task already challenged")

	// ErrInsufficientStake indicates an operator's stake cannot cover a
	// requested debit. Slashing never returns this; it clamps to zero instead.
	ErrInsufficientStake = errors.New("insufficient stake")

	// ErrAttestationInvalid indicates a signature failed verification.
	ErrAttestationInvalid = errors.New("attestation invalid")

	// ErrExternalFetch wraps failures of outbound registry or yield-source
	// calls after all retries are exhausted.
	ErrExternalFetch = errors.New("external fetch failed")

	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPositionNotFound indicates an unknown position id.
	ErrPositionNotFound = errors.New("position not found")

	// ErrNoFinalizedYield indicates no consensus value has been finalized yet
	// for the asset, so no adjustment can be computed.
	ErrNoFinalizedYield = errors.New("no finalized yield data")
)
