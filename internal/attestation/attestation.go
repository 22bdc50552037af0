/*

This file contains the attestation port. The concrete signature scheme is an
external capability; the core only requires that submissions can be verified
and proofs aggregated. Implementations plug in behind the Verifier interface,
so tests run against a fake and production can bind any verifiable-signature
mechanism.

*/

package attestation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// AggregatedProof is an opaque combined attestation over many signatures.
type AggregatedProof struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// Verifier is the consumed attestation contract.
type Verifier interface {
	// Verify reports whether signature is a valid attestation of message
	// under pubkey.
	Verify(pubkey, message, signature []byte) bool

	// Aggregate combines individual signatures into one proof.
	Aggregate(signatures [][]byte) (AggregatedProof, error)
}

// InsecureVerifier accepts any signature equal to sha256(pubkey || message).
// It exists for local runs and tests; it provides no cryptographic security.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(pubkey, message, signature []byte) bool {
	expected := sha256.Sum256(append(append([]byte{}, pubkey...), message...))
	return bytes.Equal(signature, expected[:])
}

func (InsecureVerifier) Aggregate(signatures [][]byte) (AggregatedProof, error) {
	if len(signatures) == 0 {
		return AggregatedProof{}, fmt.Errorf("%w: no signatures to aggregate", types.ErrAttestationInvalid)
	}
	h := sha256.New()
	for _, sig := range signatures {
		h.Write(sig)
	}
	return AggregatedProof{Digest: hex.EncodeToString(h.Sum(nil)), Count: len(signatures)}, nil
}

// Sign produces the signature InsecureVerifier accepts. Test helper.
func Sign(pubkey, message []byte) []byte {
	sig := sha256.Sum256(append(append([]byte{}, pubkey...), message...))
	return sig[:]
}
