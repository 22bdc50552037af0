/*

This file fetches independent ground-truth yield observations used to verify
finalized consensus values. Every request carries a deadline and a bounded
retry with exponential backoff; when historical data is unavailable the
fetcher degrades to the latest observation with a recorded warning instead of
blocking the challenge pipeline.

*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

var yieldLogger = logger.GetForComponent("yield_source")

var ErrInvalidObservation = errors.New("invalid yield observation received")

const maxFetchRetries = 3

// YieldObservation is one ground-truth data point.
type YieldObservation struct {
	Asset     types.AssetID `json:"asset"`
	RateBps   int64         `json:"rate_bps"`
	Timestamp time.Time     `json:"timestamp"`
	Proof     string        `json:"proof,omitempty"`

	// Stale marks an observation served as a latest-value fallback because
	// historical data for the requested time was unavailable.
	Stale bool `json:"stale"`
}

// YieldSource is the consumed contract of the external ground-truth provider.
type YieldSource interface {
	// FetchYield returns the asset's yield as of atTime, or the latest
	// observation flagged Stale when history is unavailable.
	FetchYield(ctx context.Context, asset types.AssetID, atTime time.Time) (YieldObservation, error)
}

// HTTPYieldSource queries a REST yield provider.
type HTTPYieldSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPYieldSource builds a yield-source client. The timeout applies per
// request attempt; retries multiply the worst-case wait.
func NewHTTPYieldSource(baseURL string, timeout time.Duration) *HTTPYieldSource {
	return &HTTPYieldSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchYield fetches the observation at the requested time, retrying with
// exponential backoff, then falls back to the latest observation.
func (s *HTTPYieldSource) FetchYield(ctx context.Context, asset types.AssetID, atTime time.Time) (YieldObservation, error) {
	obs, histErr := s.fetch(ctx, asset, &atTime)
	if histErr == nil {
		return obs, nil
	}

	yieldLogger.Warn().
		Err(histErr).
		Str("asset", string(asset)).
		Time("atTime", atTime).
		Msg("Historical yield unavailable, falling back to latest observation")

	obs, err := s.fetch(ctx, asset, nil)
	if err != nil {
		return YieldObservation{}, fmt.Errorf("%w: historical: %w; latest: %w", types.ErrExternalFetch, histErr, err)
	}
	obs.Stale = true
	return obs, nil
}

// fetch performs one observation request with bounded retries. atTime == nil
// requests the latest observation.
func (s *HTTPYieldSource) fetch(ctx context.Context, asset types.AssetID, atTime *time.Time) (YieldObservation, error) {
	endpoint := fmt.Sprintf("%s/yield/%s", s.baseURL, url.PathEscape(string(asset)))
	if atTime != nil {
		endpoint += "?at=" + url.QueryEscape(atTime.UTC().Format(time.RFC3339))
	}

	var obs YieldObservation
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("no observation available (status 404)"))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("yield source returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding observation: %w", err))
		}
		if obs.RateBps <= 0 {
			return backoff.Permanent(fmt.Errorf("%w: rate %d bps", ErrInvalidObservation, obs.RateBps))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return YieldObservation{}, fmt.Errorf("%w: %w", types.ErrExternalFetch, err)
	}
	obs.Asset = asset
	return obs, nil
}
