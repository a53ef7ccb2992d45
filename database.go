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

// Package etoile matches free-text dining wishes against the Michelin
// restaurant corpus and finds restaurants near a point on the map.
package etoile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/ai/openai"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/geo"
	"github.com/poiesic/etoile/ingestion"
	"github.com/poiesic/etoile/reembed"
	"github.com/poiesic/etoile/search"
	"github.com/poiesic/etoile/storage"
	"github.com/poiesic/etoile/storage/badger"
	"github.com/poiesic/etoile/storage/postgres"
	"github.com/poiesic/etoile/storage/qdrant"
)

var (
	// ErrPostgresNotConfigured is returned when a PostgreSQL operation is
	// requested without WithPostgres.
	ErrPostgresNotConfigured = errors.New("postgres store not configured")

	// ErrQdrantNotConfigured is returned when a Qdrant operation is
	// requested without WithQdrant.
	ErrQdrantNotConfigured = errors.New("qdrant store not configured")

	// ErrEmbedderNotLoaded is returned when an operation needs the
	// embedding model but the Database was opened WithoutEmbedder.
	ErrEmbedderNotLoaded = errors.New("embedding model not loaded")
)

// Database owns the corpus store, the embedding model and any external
// vector stores for the lifetime of the process.
type Database struct {
	backend  *badger.Backend
	repo     *badger.CorpusRepository
	provider ai.AIProvider
	pg       *postgres.Store
	qd       *qdrant.Store
	strategy search.Strategy
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	noModel     bool
	inMemory    bool
	postgresDSN string
	qdrantAddr  string
	qdrantColl  string
	strategy    search.Strategy
	logger      *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithAIProvider uses an already constructed provider instead of
// connecting to the embedding service. The Database takes ownership.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithoutEmbedder opens the Database without loading the embedding model,
// for operations that only read or copy the corpus.
func WithoutEmbedder() DatabaseOption {
	return func(o *databaseOptions) {
		o.noModel = true
	}
}

// WithInMemory keeps the corpus store in memory; the file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithPostgres connects a PostgreSQL/pgvector store.
func WithPostgres(dsn string) DatabaseOption {
	return func(o *databaseOptions) {
		o.postgresDSN = dsn
	}
}

// WithQdrant connects a Qdrant collection over gRPC.
func WithQdrant(addr, collection string) DatabaseOption {
	return func(o *databaseOptions) {
		o.qdrantAddr = addr
		o.qdrantColl = collection
	}
}

// WithStrategy selects the similarity search strategy used by NewMatcher.
func WithStrategy(strategy search.Strategy) DatabaseOption {
	return func(o *databaseOptions) {
		o.strategy = strategy
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the corpus store at filePath and loads the embedding
// model. The model is loaded once here and reused by every later call.
func NewDatabase(ctx context.Context, filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		strategy: search.StrategyInMemory,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if _, err := search.ParseStrategy(string(options.strategy)); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	db := &Database{
		backend:  backend,
		strategy: options.strategy,
		logger:   options.logger.With("component", "database"),
	}

	if db.repo, err = badger.NewCorpusRepository(backend); err != nil {
		db.Close()
		return nil, err
	}

	db.provider = options.provider
	if db.provider == nil && !options.noModel {
		if db.provider, err = openai.NewProvider(ctx, options.aiConfig); err != nil {
			db.Close()
			return nil, err
		}
	}

	if options.postgresDSN != "" {
		if db.pg, err = postgres.Open(ctx, options.postgresDSN, postgres.WithLogger(options.logger)); err != nil {
			db.Close()
			return nil, err
		}
	}

	if options.qdrantAddr != "" {
		dim := options.aiConfig.Dimension
		if db.provider != nil {
			dim = db.provider.Embedder().Dimension()
		}
		if db.qd, err = qdrant.Open(options.qdrantAddr, options.qdrantColl, dim); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Close releases the model, the external stores and the corpus store.
func (db *Database) Close() error {
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
	}
	if db.qd != nil {
		if err := db.qd.Close(); err != nil {
			db.logger.Error("error closing qdrant store", "err", err)
		}
	}
	if db.pg != nil {
		if err := db.pg.Close(); err != nil {
			db.logger.Error("error closing postgres store", "err", err)
		}
	}
	if db.repo != nil {
		if err := db.repo.Close(); err != nil {
			db.logger.Error("error closing corpus repository", "err", err)
			return err
		}
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Repository() storage.CorpusRepository {
	return db.repo
}

// Embedder returns the loaded embedding model, or nil when the Database
// was opened WithoutEmbedder.
func (db *Database) Embedder() ai.Embedder {
	if db.provider == nil {
		return nil
	}
	return db.provider.Embedder()
}

func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.repo, opts...)
}

func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if db.provider == nil {
		return nil, ErrEmbedderNotLoaded
	}
	return reembed.NewReembedder(db.repo, db.provider.Embedder(), config, progress)
}

// NewMatcher builds a matcher over the configured strategy. The in-memory
// strategy snapshots the corpus now; later corpus changes need a new matcher.
// It returns reembed.ErrModelMismatch when the corpus was embedded with a
// different model than the loaded one.
func (db *Database) NewMatcher(ctx context.Context, opts ...search.Option) (*search.Matcher, error) {
	if db.provider == nil {
		return nil, ErrEmbedderNotLoaded
	}
	manifest, err := db.repo.LoadManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embedding manifest: %w", err)
	}
	if err := reembed.CheckManifest(manifest, db.provider.Embedder()); err != nil {
		return nil, err
	}
	strategy, err := db.similaritySearch(ctx)
	if err != nil {
		return nil, err
	}
	return search.NewMatcher(db.provider.Embedder(), strategy, opts...)
}

func (db *Database) similaritySearch(ctx context.Context) (search.SimilaritySearch, error) {
	switch db.strategy {
	case search.StrategyStore:
		return search.NewDelegated(db.backend)
	case search.StrategyPostgres:
		if db.pg == nil {
			return nil, ErrPostgresNotConfigured
		}
		return search.NewDelegated(db.pg)
	case search.StrategyQdrant:
		if db.qd == nil {
			return nil, ErrQdrantNotConfigured
		}
		return search.NewDelegated(db.qd)
	default:
		return search.LoadInMemory(ctx, db.repo)
	}
}

// Nearest returns the n restaurants matching filter closest to point by
// planar distance.
func (db *Database) Nearest(ctx context.Context, point core.Location, n int, filter core.Filter) ([]core.Neighbor, error) {
	return db.NearestBy(ctx, geo.Planar, point, n, filter)
}

// NearestBy is Nearest with a caller-chosen distance metric.
func (db *Database) NearestBy(ctx context.Context, metric geo.Metric, point core.Location, n int, filter core.Filter) ([]core.Neighbor, error) {
	records, err := db.repo.ListRestaurants(ctx, filter)
	if err != nil {
		return nil, err
	}
	return geo.NearestBy(metric, point, records, n), nil
}

// CountrySummary returns per-country restaurant and star counts.
func (db *Database) CountrySummary(ctx context.Context) ([]*core.CountryStats, error) {
	records, err := db.repo.ListRestaurants(ctx, core.Filter{})
	if err != nil {
		return nil, err
	}
	return core.SummarizeByCountry(records), nil
}

// SyncPostgres copies the corpus, vectors included, into PostgreSQL.
func (db *Database) SyncPostgres(ctx context.Context) (int, error) {
	if db.pg == nil {
		return 0, ErrPostgresNotConfigured
	}
	records, err := db.repo.ListRestaurants(ctx, core.Filter{})
	if err != nil {
		return 0, err
	}
	if err := db.pg.ReplaceCorpus(ctx, records...); err != nil {
		return 0, fmt.Errorf("sync postgres: %w", err)
	}
	db.logger.Info("synced corpus to postgres", "records", len(records))
	return len(records), nil
}

// SyncQdrant uploads every embedded record to the Qdrant collection.
// Returns the number of points written.
func (db *Database) SyncQdrant(ctx context.Context) (int, error) {
	if db.qd == nil {
		return 0, ErrQdrantNotConfigured
	}
	records, err := db.repo.ListRestaurants(ctx, core.Filter{})
	if err != nil {
		return 0, err
	}
	written, err := db.qd.ReplaceCorpus(ctx, records...)
	if err != nil {
		return 0, fmt.Errorf("sync qdrant: %w", err)
	}
	db.logger.Info("synced corpus to qdrant", "points", written, "records", len(records))
	return written, nil
}
