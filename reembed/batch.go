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
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
)

// DefaultBatchSize is the default number of descriptions sent to the model
// in one call.
const DefaultBatchSize = 32

// CorpusEmbedder attaches description embeddings to restaurant records.
//
// Batches are embedded concurrently on a worker pool. A batch call that
// fails after retries falls back to embedding its records one at a time so
// a single bad description only fails its own record.
type CorpusEmbedder struct {
	embedder   ai.Embedder
	pool       *ants.Pool
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	force      bool
	logger     *slog.Logger
}

// Option configures a CorpusEmbedder.
type Option func(*CorpusEmbedder) error

// WithPoolSize sets the number of batches embedded concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *CorpusEmbedder) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if c.pool != nil {
			c.pool.Release()
		}
		c.pool = pool
		return nil
	}
}

// WithBatchSize sets how many descriptions go into one model call.
func WithBatchSize(size int) Option {
	return func(c *CorpusEmbedder) error {
		if size <= 0 {
			return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, size)
		}
		c.batchSize = size
		return nil
	}
}

// WithRetry sets the attempts and base backoff for each model call.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *CorpusEmbedder) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxRetries = maxAttempts
		c.retryDelay = baseDelay
		return nil
	}
}

// WithForce re-embeds records whose stored vector is still fresh.
func WithForce(force bool) Option {
	return func(c *CorpusEmbedder) error {
		c.force = force
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CorpusEmbedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "corpus-embedder")
		return nil
	}
}

// NewCorpusEmbedder creates a corpus embedder. Call Release when done.
func NewCorpusEmbedder(embedder ai.Embedder, opts ...Option) (*CorpusEmbedder, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &CorpusEmbedder{
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     slog.Default().With("component", "corpus-embedder"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			c.Release()
			return nil, err
		}
	}
	if c.pool == nil {
		size := max(runtime.NumCPU()/2, 1)
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		c.pool = pool
	}
	return c, nil
}

// Release releases the worker pool.
func (c *CorpusEmbedder) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// Result is the augmented collection produced by EmbedAll.
type Result struct {
	// Records holds a copy of every input record, in input order.
	Records []*core.RestaurantRecord
	// Embedded counts records that received a new vector.
	Embedded int
	// Reused counts records whose existing vector was still fresh.
	Reused int
	// Empty counts records without a description.
	Empty int
	// Failures lists records that could not be embedded, in input order.
	// Their vector is absent in Records.
	Failures []*EmbeddingFailure

	changed []bool
}

// Err joins the per-record failures, or returns nil when there were none.
func (r *Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Updates returns the vector changes to persist: new vectors for embedded
// records and removals for records that lost theirs.
func (r *Result) Updates() []core.EmbeddingUpdate {
	var updates []core.EmbeddingUpdate
	for i, record := range r.Records {
		if !r.changed[i] {
			continue
		}
		updates = append(updates, core.EmbeddingUpdate{
			ID:              record.ID,
			Vector:          record.Vector,
			DescriptionHash: record.DescriptionHash,
		})
	}
	return updates
}

// EmbedAll returns records with their description embeddings populated.
//
// Records with an empty description pass through without a vector. Records
// whose vector matches their description and the model dimension are kept
// unless the embedder was built WithForce. A record that fails to embed is
// reported in Result.Failures and does not abort the others. The input
// records are not modified. The only error returned is context cancellation.
func (c *CorpusEmbedder) EmbedAll(ctx context.Context, records []*core.RestaurantRecord) (*Result, error) {
	result := &Result{
		Records: make([]*core.RestaurantRecord, len(records)),
		changed: make([]bool, len(records)),
	}

	dim := c.embedder.Dimension()
	var pending []int
	for i, record := range records {
		if record == nil {
			continue
		}
		out := record.Clone()
		result.Records[i] = out

		switch {
		case !out.HasDescription():
			result.Empty++
			if out.HasEmbedding() {
				result.changed[i] = true
			}
			out.Vector = nil
			out.DescriptionHash = 0
		case !c.force && out.EmbeddingFresh() && len(out.Vector) == dim:
			result.Reused++
		default:
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 {
		return result, nil
	}

	errs := make([]error, len(records))
	var wg sync.WaitGroup
	for start := 0; start < len(pending); start += c.batchSize {
		batch := pending[start:min(start+c.batchSize, len(pending))]
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			c.embedBatch(ctx, result.Records, batch, errs)
		})
		if err != nil {
			wg.Done()
			for _, i := range batch {
				errs[i] = err
			}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, i := range pending {
		record := result.Records[i]
		result.changed[i] = true
		if errs[i] != nil {
			record.Vector = nil
			record.DescriptionHash = 0
			result.Failures = append(result.Failures, &EmbeddingFailure{RecordID: record.ID, Err: errs[i]})
			continue
		}
		result.Embedded++
	}

	c.logger.Debug("embedded corpus batch",
		"records", len(records),
		"embedded", result.Embedded,
		"reused", result.Reused,
		"empty", result.Empty,
		"failed", len(result.Failures))
	return result, nil
}

// embedBatch embeds the records at indexes, writing vectors into records and
// failures into errs. Each index is owned by exactly one batch.
func (c *CorpusEmbedder) embedBatch(ctx context.Context, records []*core.RestaurantRecord, indexes []int, errs []error) {
	texts := make([]string, len(indexes))
	for j, i := range indexes {
		texts[j] = records[i].Description
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = c.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
		}
		return err
	}, c.maxRetries, c.retryDelay)

	if err == nil {
		for j, i := range indexes {
			errs[i] = c.attach(records[i], vectors[j])
		}
		return
	}
	if ctx.Err() != nil || errors.Is(err, ai.ErrModelUnavailable) {
		for _, i := range indexes {
			errs[i] = err
		}
		return
	}

	c.logger.Warn("batch embedding failed, embedding records individually", "records", len(indexes), "err", err)
	for _, i := range indexes {
		var vector []float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			vector, err = c.embedder.EmbedText(ctx, records[i].Description)
			return err
		}, c.maxRetries, c.retryDelay)
		if err != nil {
			errs[i] = err
			continue
		}
		errs[i] = c.attach(records[i], vector)
	}
}

// attach stores a normalized copy of vector on record. The vector is either
// written whole or not at all.
func (c *CorpusEmbedder) attach(record *core.RestaurantRecord, vector []float32) error {
	if dim := c.embedder.Dimension(); len(vector) != dim {
		return fmt.Errorf("%w: got %d values, model produces %d", core.ErrMissingVectorDimension, len(vector), dim)
	}
	record.Vector = similarity.Normalize(vector)
	record.DescriptionHash = core.HashDescription(record.Description)
	return nil
}
