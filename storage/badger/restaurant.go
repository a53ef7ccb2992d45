package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/storage"
)

// CorpusRepository implements storage.CorpusRepository for BadgerDB.
type CorpusRepository struct {
	backend *Backend
}

var _ storage.CorpusRepository = (*CorpusRepository)(nil)

// NewCorpusRepository creates a new CorpusRepository over backend.
func NewCorpusRepository(backend *Backend) (*CorpusRepository, error) {
	if backend == nil {
		return nil, errors.New("badger: backend is required")
	}
	return &CorpusRepository{
		backend: backend,
	}, nil
}

// Close releases resources. CorpusRepository has no resources to release;
// the backend is closed by its owner.
func (r *CorpusRepository) Close() error {
	return nil
}

// Backend returns the underlying backend, which also serves as the
// store-delegated similarity searcher.
func (r *CorpusRepository) Backend() *Backend {
	return r.backend
}

// AddRestaurants adds records to the corpus.
func (r *CorpusRepository) AddRestaurants(ctx context.Context, records ...*core.RestaurantRecord) error {
	if len(records) == 0 {
		return nil
	}
	seen := make(map[core.ID]struct{}, len(records))
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			return fmt.Errorf("%w: restaurant %d", storage.ErrDuplicateKey, record.ID)
		}
		seen[record.ID] = struct{}{}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			_, err := tx.Get(makeRestaurantKey(record.ID))
			if err == nil {
				return fmt.Errorf("%w: restaurant %d", storage.ErrDuplicateKey, record.ID)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	return r.writeRecords(ctx, records)
}

// ReplaceCorpus drops every record and the embedding manifest, then adds records.
func (r *CorpusRepository) ReplaceCorpus(ctx context.Context, records ...*core.RestaurantRecord) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := r.backend.db.DropPrefix([]byte(restaurantPrefix), []byte(manifestKey)); err != nil {
		return err
	}
	r.backend.logger.Info("corpus dropped", "incoming", len(records))
	return r.writeRecords(ctx, records)
}

// writeRecords stores records through a write batch, which splits large
// corpora across transactions.
func (r *CorpusRepository) writeRecords(ctx context.Context, records []*core.RestaurantRecord) error {
	wb := r.backend.db.NewWriteBatch()
	defer wb.Cancel()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set(makeRestaurantKey(record.ID), storage.MarshalRestaurant(record)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// GetRestaurant retrieves a single record by ID.
func (r *CorpusRepository) GetRestaurant(ctx context.Context, id core.ID) (*core.RestaurantRecord, error) {
	var result *core.RestaurantRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRestaurant(tx, makeRestaurantKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: restaurant %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// GetRestaurants retrieves multiple records by their IDs.
func (r *CorpusRepository) GetRestaurants(ctx context.Context, ids ...core.ID) ([]*core.RestaurantRecord, error) {
	var result []*core.RestaurantRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRestaurant(tx, makeRestaurantKey(id))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListRestaurants returns the records matching filter in ascending ID order.
func (r *CorpusRepository) ListRestaurants(ctx context.Context, filter core.Filter) ([]*core.RestaurantRecord, error) {
	var result []*core.RestaurantRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanRestaurants(ctx, tx, func(record *core.RestaurantRecord) error {
			if filter.Matches(record) {
				result = append(result, record)
			}
			return nil
		})
	}, false)
	return result, err
}

// ForEachBatch calls fn with consecutive batches in ascending ID order.
// Each batch is read in its own transaction so fn may write to the repository.
func (r *CorpusRepository) ForEachBatch(ctx context.Context, batchSize int, fn func(batch []*core.RestaurantRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	start := makeRestaurantKey(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.RestaurantRecord, 0, batchSize)
		var lastID core.ID
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(restaurantPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(start); iter.Valid() && len(batch) < batchSize; iter.Next() {
				record, err := readItem(iter.Item())
				if err != nil {
					return err
				}
				batch = append(batch, record)
				lastID = record.ID
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize || lastID == core.ID(^uint64(0)) {
			return nil
		}
		start = makeRestaurantKey(lastID + 1)
	}
}

// UpdateEmbeddings replaces the vectors of existing records.
func (r *CorpusRepository) UpdateEmbeddings(ctx context.Context, updates ...core.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	records := make([]*core.RestaurantRecord, 0, len(updates))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, update := range updates {
			record, err := readRestaurant(tx, makeRestaurantKey(update.ID))
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("%w: restaurant %d", storage.ErrNotFound, update.ID)
			}
			record.Vector = update.Vector
			record.DescriptionHash = update.DescriptionHash
			if len(update.Vector) == 0 {
				record.Vector = nil
				record.DescriptionHash = 0
			}
			records = append(records, record)
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	return r.writeRecords(ctx, records)
}

// Count returns the number of records in the corpus.
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(restaurantPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// SaveManifest persists the embedding manifest.
func (r *CorpusRepository) SaveManifest(ctx context.Context, manifest *core.EmbeddingManifest) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if manifest.UpdatedAt.IsZero() {
			manifest.UpdatedAt = time.Now().UTC()
		}
		if err := tx.Set([]byte(manifestKey), storage.MarshalManifest(manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadManifest retrieves the embedding manifest.
// Returns nil, nil if no manifest exists.
func (r *CorpusRepository) LoadManifest(ctx context.Context) (*core.EmbeddingManifest, error) {
	var manifest *core.EmbeddingManifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(manifestKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			manifest, unmarshalErr = storage.UnmarshalManifest(val)
			return unmarshalErr
		})
	}, false)
	return manifest, err
}

// readRestaurant reads a record by key. Returns nil, nil if missing.
func readRestaurant(tx *badger.Txn, key []byte) (*core.RestaurantRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return readItem(item)
}

func readItem(item *badger.Item) (*core.RestaurantRecord, error) {
	var record *core.RestaurantRecord
	err := item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRestaurant(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	if id, ok := restaurantIDFromKey(item.Key()); ok && id != record.ID {
		return nil, fmt.Errorf("%w: key %d holds restaurant %d", storage.ErrSerializationFailed, id, record.ID)
	}
	return record, nil
}
