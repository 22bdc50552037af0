/*

This file contains the feed collector used in self-collection mode: one
worker per registered operator fetches an independent yield observation and
submits it to the consensus engine. In production operators push their own
submissions through the HTTP API; the collector exists so a single deployment
can exercise the full pipeline against a yield source.

*/

package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Najnomics/YieldSync-Hook-sub001/internal/consensus"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/datafetcher"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/events"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/logger"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/registry"
	"github.com/Najnomics/YieldSync-Hook-sub001/internal/types"
)

// FeedCollector fans submissions out across all registered operators.
type FeedCollector struct {
	logger   zerolog.Logger
	engine   *consensus.Engine
	registry registry.OperatorRegistry
	source   datafetcher.YieldSource
	emitter  *events.Emitter
}

// NewFeedCollector wires the collector.
func NewFeedCollector(engine *consensus.Engine, reg registry.OperatorRegistry, source datafetcher.YieldSource, emitter *events.Emitter) *FeedCollector {
	return &FeedCollector{
		logger:   logger.GetForComponent("feed_collector"),
		engine:   engine,
		registry: reg,
		source:   source,
		emitter:  emitter,
	}
}

// Collect fetches one observation per registered operator concurrently and
// submits each to the engine. It returns the number of accepted submissions.
// A failed fetch or rejected submission never aborts the round; the other
// workers proceed independently.
func (f *FeedCollector) Collect(ctx context.Context, asset types.AssetID) int {
	operators, err := f.registry.Operators(ctx)
	if err != nil {
		f.logger.Error().Err(err).Str("asset", string(asset)).Msg("Failed to list operators, skipping collection")
		return 0
	}
	if len(operators) == 0 {
		f.logger.Warn().Str("asset", string(asset)).Msg("No registered operators to collect from")
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for _, operator := range operators {
		wg.Add(1)
		go func(operator string) {
			defer wg.Done()

			obs, err := f.source.FetchYield(ctx, asset, f.engine.Now())
			if err != nil {
				f.logger.Warn().Err(err).
					Str("asset", string(asset)).
					Str("operator", operator).
					Msg("Feed fetch failed")
				return
			}

			err = f.engine.Submit(ctx, asset, operator, obs.RateBps, []byte(obs.Proof), obs.Timestamp)
			f.emitter.SubmissionRecorded(asset, operator, obs.RateBps, err == nil)
			if err != nil {
				f.logger.Warn().Err(err).
					Str("asset", string(asset)).
					Str("operator", operator).
					Msg("Feed submission rejected")
				return
			}

			mu.Lock()
			accepted++
			mu.Unlock()
		}(operator)
	}
	wg.Wait()

	f.logger.Info().
		Str("asset", string(asset)).
		Int("operators", len(operators)).
		Int("accepted", accepted).
		Msg("Feed collection complete")
	return accepted
}
