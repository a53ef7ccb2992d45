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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/storage"
)

// Config holds configuration for a store re-embedding pass.
type Config struct {
	// BatchSize is the number of records read from the store and embedded per step
	BatchSize int

	// PoolSize is the number of model calls in flight at once
	PoolSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each model call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Force re-embeds every record, including fresh ones. It is required
	// when the stored vectors came from a different model.
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		PoolSize:       2,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	case c.PoolSize <= 0:
		return fmt.Errorf("%w: pool size %d", ErrInvalidConfig, c.PoolSize)
	case c.MaxRetries <= 0:
		return ErrInvalidMaxAttempts
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: negative retry delay", ErrInvalidConfig)
	}
	return nil
}

// Summary describes a completed pass.
type Summary struct {
	Total    int
	Embedded int
	Reused   int
	Empty    int
	Failures []*EmbeddingFailure
	Elapsed  time.Duration
}

// Reembedder runs the Corpus Embedder over every record in a repository and
// commits the resulting vectors back to it.
//
// A pass is a full re-materialization of the corpus vectors. It must not run
// while the same corpus is being queried.
type Reembedder struct {
	repo     storage.CorpusRepository
	embedder ai.Embedder
	corpus   *CorpusEmbedder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.CorpusRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	logger := slog.Default().With("component", "reembedder")
	corpus, err := NewCorpusEmbedder(embedder,
		WithPoolSize(config.PoolSize),
		WithBatchSize(min(config.BatchSize, DefaultBatchSize)),
		WithRetry(config.MaxRetries, config.RetryDelay),
		WithForce(config.Force),
		WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &Reembedder{
		repo:     repo,
		embedder: embedder,
		corpus:   corpus,
		config:   config,
		progress: progress,
		logger:   logger,
	}, nil
}

// Release releases the embedding worker pool.
func (r *Reembedder) Release() {
	r.corpus.Release()
}

// Run embeds every record in the repository with the configured embedder.
//
// Per-record failures are collected in the returned Summary and leave that
// record without a vector; successfully embedded records still commit. On
// success the embedding manifest is updated to the current model.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	if err := r.checkManifest(ctx); err != nil {
		return nil, err
	}

	total, err := r.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count restaurants: %w", err)
	}

	summary := &Summary{Total: total}
	if total == 0 {
		fmt.Fprintf(r.progress, "No restaurants found in corpus (0 records)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Embedding %d restaurants with %s (batch size: %d)\n",
		total, r.embedder.Model(), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.repo.ForEachBatch(ctx, r.config.BatchSize, func(records []*core.RestaurantRecord) error {
		result, err := r.corpus.EmbedAll(ctx, records)
		if err != nil {
			return err
		}
		if err := r.repo.UpdateEmbeddings(ctx, result.Updates()...); err != nil {
			return fmt.Errorf("store embeddings: %w", err)
		}
		for _, f := range result.Failures {
			r.logger.Warn("restaurant not embedded", "id", f.RecordID, "err", f.Err)
		}

		summary.Embedded += result.Embedded
		summary.Reused += result.Reused
		summary.Empty += result.Empty
		summary.Failures = append(summary.Failures, result.Failures...)
		processed += len(records)
		tracker.Update(processed, len(summary.Failures))
		return nil
	})
	if err != nil {
		return nil, err
	}
	tracker.Finish()

	manifest := &core.EmbeddingManifest{
		Model:     r.embedder.Model(),
		Dimension: r.embedder.Dimension(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.repo.SaveManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("save embedding manifest: %w", err)
	}

	summary.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Embedding complete. Embedded %d, reused %d, %d without description, %d failed in %v\n",
		summary.Embedded, summary.Reused, summary.Empty, len(summary.Failures), summary.Elapsed.Round(time.Millisecond))

	return summary, nil
}

func (r *Reembedder) checkManifest(ctx context.Context) error {
	manifest, err := r.repo.LoadManifest(ctx)
	if err != nil {
		return fmt.Errorf("load embedding manifest: %w", err)
	}
	if manifest == nil || r.config.Force {
		return nil
	}
	if err := CheckManifest(manifest, r.embedder); err != nil {
		return fmt.Errorf("%w (re-run with force)", err)
	}
	return nil
}
