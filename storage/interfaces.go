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

package storage

import (
	"context"

	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
)

// CorpusRepository stores the restaurant corpus and its embeddings.
// Implementations must be thread-safe and support concurrent access.
type CorpusRepository interface {
	// AddRestaurants adds records to the corpus.
	// Returns ErrDuplicateKey if any ID is already present; nothing is written then.
	AddRestaurants(ctx context.Context, records ...*core.RestaurantRecord) error

	// ReplaceCorpus drops every record and the embedding manifest, then adds records.
	ReplaceCorpus(ctx context.Context, records ...*core.RestaurantRecord) error

	// GetRestaurant retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRestaurant(ctx context.Context, id core.ID) (*core.RestaurantRecord, error)

	// GetRestaurants retrieves multiple records by their IDs.
	// Returns only the records that exist (no error for missing records).
	GetRestaurants(ctx context.Context, ids ...core.ID) ([]*core.RestaurantRecord, error)

	// ListRestaurants returns the records matching filter in ascending ID order.
	ListRestaurants(ctx context.Context, filter core.Filter) ([]*core.RestaurantRecord, error)

	// ForEachBatch calls fn with consecutive batches of at most batchSize
	// records in ascending ID order. Iteration stops at the first error.
	ForEachBatch(ctx context.Context, batchSize int, fn func(batch []*core.RestaurantRecord) error) error

	// UpdateEmbeddings replaces the vectors of existing records.
	// Returns ErrNotFound if any record doesn't exist; nothing is written then.
	UpdateEmbeddings(ctx context.Context, updates ...core.EmbeddingUpdate) error

	// Count returns the number of records in the corpus.
	Count(ctx context.Context) (int, error)

	// LoadManifest returns the embedding manifest, or nil if none was saved.
	LoadManifest(ctx context.Context) (*core.EmbeddingManifest, error)

	// SaveManifest records which model produced the corpus vectors.
	SaveManifest(ctx context.Context, manifest *core.EmbeddingManifest) error

	// Close releases resources held by the repository.
	Close() error
}

// SimilarityQuery is a similarity search executed inside a store.
type SimilarityQuery struct {
	Vector []float32
	Params similarity.Params
}

// Validate checks the query before it is sent to a store.
func (q SimilarityQuery) Validate() error {
	if len(q.Vector) == 0 {
		return ErrInvalidQuery
	}
	return q.Params.Validate()
}

// VectorSearcher ranks stored records against a query vector.
//
// Implementations apply the full ranking contract: strict threshold,
// descending score with ascending ID on ties, candidate cap, identity
// dedup and top-K. Records whose vector has a different length than the
// query or zero magnitude are skipped, never failing the query. An empty
// result is not an error.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, query SimilarityQuery) ([]*core.MatchResult, error)
}
