// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
)

// Matcher finds the restaurants whose descriptions are most similar to a
// free-text query.
type Matcher struct {
	embedder ai.Embedder
	strategy SimilaritySearch
	logger   *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewMatcher creates a matcher that embeds queries with embedder and ranks
// them with strategy.
func NewMatcher(embedder ai.Embedder, strategy SimilaritySearch, opts ...Option) (*Matcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if strategy == nil {
		return nil, ErrStrategyRequired
	}

	m := &Matcher{
		embedder: embedder,
		strategy: strategy,
		logger:   slog.Default().With("component", "matcher"),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Match returns the top matches for query, best first.
// Returns core.ErrNoMatchFound when no record exceeds the threshold.
func (m *Matcher) Match(ctx context.Context, query string, params Params) ([]*core.MatchResult, error) {
	return m.MatchWithMonitor(ctx, query, params, nil)
}

// MatchWithMonitor is Match with callbacks at each stage.
func (m *Matcher) MatchWithMonitor(ctx context.Context, query string, params Params, monitor SearchMonitor) (results []*core.MatchResult, err error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, params)
	defer func() { monitor.Finish(results, err) }()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	vector, err := m.embedder.EmbedText(ctx, query)
	if err != nil {
		m.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	monitor.AfterEmbedding(vector)

	results, err = m.strategy.Search(ctx, vector, params)
	if err != nil {
		m.logger.Error("error ranking corpus", "err", err)
		return nil, err
	}
	monitor.AfterRanking(results)

	if len(results) == 0 {
		m.logger.Debug("no match above threshold", "threshold", params.Threshold)
		return nil, core.ErrNoMatchFound
	}
	m.logger.Debug("match complete", "results", len(results), "best", results[0].Score)
	return results, nil
}

// IsNoMatch reports whether err means the query matched nothing.
func IsNoMatch(err error) bool {
	return errors.Is(err, core.ErrNoMatchFound)
}
