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

package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
	"github.com/poiesic/etoile/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ storage.VectorSearcher = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// scanRestaurants calls fn for every stored restaurant in ascending ID order.
func scanRestaurants(ctx context.Context, tx *badger.Txn, fn func(*core.RestaurantRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(restaurantPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := readItem(iter.Item())
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// SearchSimilar ranks stored restaurants against the query vector inside a
// read transaction. Implements storage.VectorSearcher.
func (b *Backend) SearchSimilar(ctx context.Context, query storage.SimilarityQuery) ([]*core.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}

	var ranking similarity.Ranking
	err := b.WithTx(func(tx *badger.Txn) error {
		var records []*core.RestaurantRecord
		err := scanRestaurants(ctx, tx, func(r *core.RestaurantRecord) error {
			if r.HasEmbedding() {
				records = append(records, r)
			}
			return nil
		})
		if err != nil {
			return err
		}
		ranking = similarity.Rank(query.Vector, records, query.Params)
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	if len(ranking.Mismatched) > 0 {
		b.logger.Warn("skipped records with mismatched vector dimension",
			"count", len(ranking.Mismatched), "query_dimension", len(query.Vector))
	}
	b.logger.Debug("similarity scan complete", "scored", ranking.Scored, "results", len(ranking.Results))
	return ranking.Results, nil
}
