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

// Package postgres stores the restaurant corpus in PostgreSQL and delegates
// similarity ranking to the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
	"github.com/poiesic/etoile/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS restaurants (
	id                 bigint PRIMARY KEY,
	name               text NOT NULL,
	address            text NOT NULL DEFAULT '',
	country            text NOT NULL DEFAULT '',
	iso_code           text NOT NULL DEFAULT '',
	cuisine            text NOT NULL DEFAULT '',
	description        text NOT NULL DEFAULT '',
	stars              smallint NULL,
	price_symbol_count integer NOT NULL DEFAULT 0,
	latitude           double precision NULL,
	longitude          double precision NULL,
	description_hash   bigint NOT NULL DEFAULT 0,
	embedding          vector NULL
)`

var copyColumns = []string{
	"id", "name", "address", "country", "iso_code", "cuisine", "description", "stars",
	"price_symbol_count", "latitude", "longitude", "description_hash", "embedding",
}

// Store is a PostgreSQL corpus with pgvector similarity search.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.VectorSearcher = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return errors.New("postgres: logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// Open connects to dsn, creates the vector extension if needed and ensures
// the schema. The pool registers the pgvector types on every connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default().With("component", "postgres-store")}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// The vector type must exist before connections can register it.
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: create vector extension: %w", err)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	s.pool = pool

	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the restaurants table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ReplaceCorpus truncates the table and copies records in one transaction.
func (s *Store) ReplaceCorpus(ctx context.Context, records ...*core.RestaurantRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE restaurants"); err != nil {
		return fmt.Errorf("postgres: truncate: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, toRow(r))
	}
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"restaurants"}, copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: copy corpus: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("corpus replaced", "rows", copied)
	return nil
}

// ListRestaurants returns the records matching filter in ascending ID order.
func (s *Store) ListRestaurants(ctx context.Context, filter core.Filter) ([]*core.RestaurantRecord, error) {
	sql, args := buildListQuery(filter)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*core.RestaurantRecord
	for rows.Next() {
		var row scannedRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		records = append(records, row.record())
	}
	return records, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM restaurants").Scan(&n)
	return int(n), err
}

// SearchSimilar ranks stored records with the pgvector cosine operator.
// The database returns the capped candidate window; dedup and top-K are
// applied with similarity.Finish so ordering matches the in-process matcher.
func (s *Store) SearchSimilar(ctx context.Context, query storage.SimilarityQuery) ([]*core.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	sql, args := buildSearchQuery(query)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []similarity.Candidate
	for rows.Next() {
		var (
			row   scannedRow
			score float64
		)
		if err := rows.Scan(append(row.dest(), &score)...); err != nil {
			return nil, err
		}
		candidates = append(candidates, similarity.Candidate{Record: row.record(), Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("pgvector search complete", "candidates", len(candidates))
	return similarity.Finish(candidates, query.Params), nil
}

// toRow converts a record to COPY values. Absent stars, location and
// embedding become NULL.
func toRow(r *core.RestaurantRecord) []any {
	var stars, lat, lng, embedding any
	if r.Stars.Known() {
		stars = int16(r.Stars)
	}
	if r.Location != nil {
		lat, lng = r.Location.Lat, r.Location.Lng
	}
	if r.HasEmbedding() {
		embedding = pgvector.NewVector(r.Vector)
	}
	return []any{
		int64(r.ID), r.Name, r.Address, r.Country, r.ISOCode, r.Cuisine, r.Description, stars,
		int32(r.PriceSymbolCount), lat, lng, int64(r.DescriptionHash), embedding,
	}
}

// scannedRow holds one row of restaurantColumns.
type scannedRow struct {
	id              int64
	name            string
	address         string
	country         string
	isoCode         string
	cuisine         string
	description     string
	stars           *int16
	price           int32
	lat             *float64
	lng             *float64
	descriptionHash int64
	embedding       *pgvector.Vector
}

func (r *scannedRow) dest() []any {
	return []any{
		&r.id, &r.name, &r.address, &r.country, &r.isoCode, &r.cuisine, &r.description,
		&r.stars, &r.price, &r.lat, &r.lng, &r.descriptionHash, &r.embedding,
	}
}

func (r *scannedRow) record() *core.RestaurantRecord {
	rec := &core.RestaurantRecord{
		ID:               core.ID(r.id),
		Name:             r.name,
		Address:          r.address,
		Country:          r.country,
		ISOCode:          r.isoCode,
		Cuisine:          r.cuisine,
		Description:      r.description,
		Stars:            core.StarsNone,
		PriceSymbolCount: int(r.price),
		DescriptionHash:  uint64(r.descriptionHash),
	}
	if r.stars != nil {
		rec.Stars = core.Stars(*r.stars)
	}
	if r.lat != nil && r.lng != nil {
		rec.Location = &core.Location{Lat: *r.lat, Lng: *r.lng}
	}
	if r.embedding != nil {
		rec.Vector = r.embedding.Slice()
	}
	return rec
}
