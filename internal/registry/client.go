/*

This file contains the HTTP client for the operator registry service. Every
call is bounded by a timeout; on failure the client degrades to its last
cached snapshot with a warning instead of blocking the consensus path.

*/

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

var registryLogger = logger.GetForComponent("operator_registry")

// operatorSet is the registry service's snapshot payload.
type operatorSet struct {
	Operators []struct {
		Address string `json:"address"`
		Stake   string `json:"stake"`
	} `json:"operators"`
	AsOf time.Time `json:"as_of"`
}

// HTTPRegistry queries the external registry service and caches the last
// good snapshot.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client

	mu       sync.RWMutex
	cache    map[string]sdkmath.Int
	cachedAt time.Time
}

// NewHTTPRegistry builds a registry client. The timeout applies per request.
func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   make(map[string]sdkmath.Int),
	}
}

// refresh fetches the full operator set. On error the existing cache stays
// in place and the caller decides whether stale data is acceptable.
func (r *HTTPRegistry) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/operators", nil)
	if err != nil {
		return fmt.Errorf("%w: building registry request: %w", types.ErrExternalFetch, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: registry request: %w", types.ErrExternalFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: registry returned status %d", types.ErrExternalFetch, resp.StatusCode)
	}

	var set operatorSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decoding registry response: %w", types.ErrExternalFetch, err)
	}

	fresh := make(map[string]sdkmath.Int, len(set.Operators))
	for _, op := range set.Operators {
		stake, ok := sdkmath.NewIntFromString(op.Stake)
		if !ok {
			registryLogger.Warn().Str("operator", op.Address).Str("stake", op.Stake).Msg("Skipping operator with unparsable stake")
			continue
		}
		fresh[op.Address] = stake
	}

	r.mu.Lock()
	r.cache = fresh
	r.cachedAt = time.Now()
	r.mu.Unlock()

	registryLogger.Debug().Int("operators", len(fresh)).Msg("Refreshed operator set")
	return nil
}

// snapshot returns the current operator set, refreshing it first and falling
// back to the cached copy when the refresh fails.
func (r *HTTPRegistry) snapshot(ctx context.Context) (map[string]sdkmath.Int, error) {
	err := r.refresh(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err != nil {
		if len(r.cache) == 0 {
			return nil, err
		}
		registryLogger.Warn().Err(err).Time("cachedAt", r.cachedAt).Msg("Registry fetch failed, using cached operator set")
	}
	return r.cache, nil
}

func (r *HTTPRegistry) IsRegistered(ctx context.Context, operator string) (bool, error) {
	set, err := r.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[operator]
	return ok, nil
}

func (r *HTTPRegistry) StakeOf(ctx context.Context, operator string) (sdkmath.Int, error) {
	set, err := r.snapshot(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	stake, ok := set[operator]
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return stake, nil
}

func (r *HTTPRegistry) TotalRegisteredOperators(ctx context.Context) (int, error) {
	set, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(set), nil
}

func (r *HTTPRegistry) Operators(ctx context.Context) ([]string, error) {
	set, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(set))
	for address := range set {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses, nil
}
