/*

This file contains the operator-registry port. The registry itself is an
external collaborator; the core only needs to know who may submit yield data,
what stake they carry, and how many operators are registered.

*/

package registry

import (
	"context"
	"sort"

	sdkmath "cosmossdk.io/math"
)

// OperatorRegistry is the consumed contract of the external registry.
type OperatorRegistry interface {
	// IsRegistered reports whether the operator may submit yield data.
	IsRegistered(ctx context.Context, operator string) (bool, error)

	// StakeOf returns the operator's current stake.
	StakeOf(ctx context.Context, operator string) (sdkmath.Int, error)

	// TotalRegisteredOperators returns the count of eligible operators,
	// the denominator of the quorum calculation.
	TotalRegisteredOperators(ctx context.Context) (int, error)

	// Operators returns the addresses of all registered operators, sorted.
	Operators(ctx context.Context) ([]string, error)
}

// StaticRegistry is an in-memory registry for tests and local runs.
type StaticRegistry struct {
	stakes map[string]sdkmath.Int
}

// NewStaticRegistry builds a registry from a fixed operator -> stake map.
func NewStaticRegistry(operators map[string]sdkmath.Int) *StaticRegistry {
	return &StaticRegistry{stakes: operators}
}

func (r *StaticRegistry) IsRegistered(_ context.Context, operator string) (bool, error) {
	_, ok := r.stakes[operator]
	return ok, nil
}

func (r *StaticRegistry) StakeOf(_ context.Context, operator string) (sdkmath.Int, error) {
	stake, ok := r.stakes[operator]
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return stake, nil
}

func (r *StaticRegistry) TotalRegisteredOperators(_ context.Context) (int, error) {
	return len(r.stakes), nil
}

func (r *StaticRegistry) Operators(_ context.Context) ([]string, error) {
	addresses := make([]string, 0, len(r.stakes))
	for address := range r.stakes {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses, nil
}
