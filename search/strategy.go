package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
	"github.com/poiesic/etoile/storage"
)

// SimilaritySearch ranks corpus records against a query vector.
// Implementations are safe for concurrent use and return an empty slice,
// not an error, when nothing matches.
type SimilaritySearch interface {
	Search(ctx context.Context, vector []float32, params Params) ([]*core.MatchResult, error)
}

// Strategy names a SimilaritySearch implementation.
type Strategy string

const (
	// StrategyInMemory ranks a corpus snapshot in process.
	StrategyInMemory Strategy = "memory"
	// StrategyStore delegates ranking to the corpus store.
	StrategyStore Strategy = "store"
	// StrategyPostgres delegates ranking to PostgreSQL with pgvector.
	StrategyPostgres Strategy = "postgres"
	// StrategyQdrant delegates ranking to Qdrant.
	StrategyQdrant Strategy = "qdrant"
)

// ParseStrategy parses a strategy name. The empty string selects StrategyInMemory.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return StrategyInMemory, nil
	case StrategyInMemory, StrategyStore, StrategyPostgres, StrategyQdrant:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// InMemory ranks a corpus snapshot held in memory. The snapshot is
// read-only after construction.
type InMemory struct {
	records []*core.RestaurantRecord
	logger  *slog.Logger
}

var _ SimilaritySearch = (*InMemory)(nil)

// NewInMemory creates a strategy over records. Records are kept in
// ascending ID order, which is the tie order of equal scores.
func NewInMemory(records []*core.RestaurantRecord) *InMemory {
	snapshot := make([]*core.RestaurantRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.HasEmbedding() {
			snapshot = append(snapshot, r.Clone())
		}
	}
	slices.SortStableFunc(snapshot, func(a, b *core.RestaurantRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return &InMemory{
		records: snapshot,
		logger:  slog.Default().With("component", "inmemory-search"),
	}
}

// LoadInMemory snapshots the embedded records of repo.
func LoadInMemory(ctx context.Context, repo storage.CorpusRepository) (*InMemory, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	records, err := repo.ListRestaurants(ctx, core.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load corpus snapshot: %w", err)
	}
	s := NewInMemory(records)
	s.logger.Info("corpus snapshot loaded", "records", len(records), "embedded", len(s.records))
	return s, nil
}

// Len returns the number of embedded records in the snapshot.
func (s *InMemory) Len() int {
	return len(s.records)
}

// Search ranks the snapshot against vector.
func (s *InMemory) Search(ctx context.Context, vector []float32, params Params) ([]*core.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ranking := similarity.Rank(vector, s.records, params)
	if len(ranking.Mismatched) > 0 {
		s.logger.Warn("skipped records with mismatched vector dimension",
			"count", len(ranking.Mismatched), "query_dimension", len(vector))
	}
	return ranking.Results, nil
}

// Delegated sends queries to a store that ranks inside itself.
type Delegated struct {
	searcher storage.VectorSearcher
}

var _ SimilaritySearch = (*Delegated)(nil)

// NewDelegated wraps a store-side searcher.
func NewDelegated(searcher storage.VectorSearcher) (*Delegated, error) {
	if searcher == nil {
		return nil, ErrStrategyRequired
	}
	return &Delegated{searcher: searcher}, nil
}

// Search forwards the query to the store.
func (d *Delegated) Search(ctx context.Context, vector []float32, params Params) ([]*core.MatchResult, error) {
	return d.searcher.SearchSimilar(ctx, storage.SimilarityQuery{Vector: vector, Params: params})
}
