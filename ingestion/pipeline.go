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

package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/reembed"
	"github.com/poiesic/etoile/storage"
)

// Pipeline loads a cleaned restaurant corpus into a repository.
// When built with an embedder it also attaches description embeddings
// before the records are stored, so an import can leave the corpus ready
// to query.
type Pipeline struct {
	repo     storage.CorpusRepository
	embedder ai.Embedder
	corpus   *reembed.CorpusEmbedder
	poolSize int
	retry    []reembed.Option
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithEmbedder embeds records that lack a fresh vector during import.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(p *Pipeline) error {
		p.embedder = embedder
		return nil
	}
}

// WithPoolSize sets the number of concurrent embedding calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		p.poolSize = size
		return nil
	}
}

// WithRetry sets the attempts and base backoff for each embedding call.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		p.retry = []reembed.Option{reembed.WithRetry(maxAttempts, baseDelay)}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repo storage.CorpusRepository, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	p := &Pipeline{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	if p.embedder != nil {
		corpusOpts := append([]reembed.Option{reembed.WithLogger(p.logger)}, p.retry...)
		if p.poolSize > 0 {
			corpusOpts = append(corpusOpts, reembed.WithPoolSize(p.poolSize))
		}
		corpus, err := reembed.NewCorpusEmbedder(p.embedder, corpusOpts...)
		if err != nil {
			return nil, err
		}
		p.corpus = corpus
	}

	return p, nil
}

// ImportOptions controls how records are loaded.
type ImportOptions struct {
	// Replace drops the existing corpus first. Otherwise records are
	// appended and must not reuse an existing ID.
	Replace bool

	// SkipInvalid drops records that fail validation instead of failing
	// the import.
	SkipInvalid bool
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int
	Skipped  int
	// Embedding is nil when the pipeline has no embedder.
	Embedding *reembed.Result
}

// Import validates records and stores them. Vectors imported with the
// records are kept when they match their description; the rest are
// computed when the pipeline has an embedder. Embedding failures leave the
// record without a vector and are reported in the result.
func (p *Pipeline) Import(ctx context.Context, records []*core.RestaurantRecord, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	valid := make([]*core.RestaurantRecord, 0, len(records))
	seen := make(map[core.ID]struct{}, len(records))
	for _, record := range records {
		if err := core.ValidateRestaurant(record); err != nil {
			if !opts.SkipInvalid {
				return nil, err
			}
			p.logger.Warn("skipping invalid restaurant", "err", err)
			result.Skipped++
			continue
		}
		if _, dup := seen[record.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, record.ID)
		}
		seen[record.ID] = struct{}{}
		valid = append(valid, record)
	}

	if p.corpus != nil && !opts.Replace {
		existing, err := p.repo.LoadManifest(ctx)
		if err != nil {
			return nil, fmt.Errorf("load embedding manifest: %w", err)
		}
		if err := reembed.CheckManifest(existing, p.embedder); err != nil {
			return nil, fmt.Errorf("append restaurants: %w", err)
		}
	}

	if p.corpus != nil {
		embedding, err := p.corpus.EmbedAll(ctx, valid)
		if err != nil {
			return nil, err
		}
		for _, f := range embedding.Failures {
			p.logger.Warn("restaurant not embedded", "id", f.RecordID, "err", f.Err)
		}
		valid = embedding.Records
		result.Embedding = embedding
	}

	var err error
	if opts.Replace {
		err = p.repo.ReplaceCorpus(ctx, valid...)
	} else {
		err = p.repo.AddRestaurants(ctx, valid...)
	}
	if err != nil {
		return nil, fmt.Errorf("store restaurants: %w", err)
	}

	if p.corpus != nil {
		manifest := &core.EmbeddingManifest{
			Model:     p.embedder.Model(),
			Dimension: p.embedder.Dimension(),
		}
		if err := p.saveManifest(ctx, manifest); err != nil {
			return nil, err
		}
	}

	result.Imported = len(valid)
	p.logger.Info("imported restaurants", "imported", result.Imported, "skipped", result.Skipped, "replace", opts.Replace)
	return result, nil
}

// ImportCSV reads a corpus file and imports it.
func (p *Pipeline) ImportCSV(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	reader, err := NewReader(r, p.logger)
	if err != nil {
		return nil, err
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return p.Import(ctx, records, opts)
}

// saveManifest records the embedder's model after an embedding import.
// Appends under a different model are refused before anything is written.
func (p *Pipeline) saveManifest(ctx context.Context, manifest *core.EmbeddingManifest) error {
	manifest.UpdatedAt = time.Now().UTC()
	if err := p.repo.SaveManifest(ctx, manifest); err != nil {
		return fmt.Errorf("save embedding manifest: %w", err)
	}
	return nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.corpus != nil {
		p.corpus.Release()
	}
}
