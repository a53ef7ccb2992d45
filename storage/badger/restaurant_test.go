package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *CorpusRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func sampleCorpus() []*core.RestaurantRecord {
	return []*core.RestaurantRecord{
		{
			ID: 3, Name: "Septime", Country: "France", ISOCode: "FRA", Cuisine: "Modern Cuisine",
			Description: "Market-driven set menus", Stars: core.StarsOne, PriceSymbolCount: 3,
			Location: &core.Location{Lat: 48.8534, Lng: 2.3808},
		},
		{
			ID: 1, Name: "Den", Country: "Japan", ISOCode: "JPN", Cuisine: "Japanese",
			Description: "Playful kaiseki", Stars: core.StarsTwo, PriceSymbolCount: 4,
		},
		{
			ID: 2, Name: "Le Baratin", Country: "France", ISOCode: "FRA", Cuisine: "Classic Cuisine",
			Stars: core.StarsBib, PriceSymbolCount: 2,
		},
	}
}

func TestCorpusRepository_AddAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, sampleCorpus()...))

	got, err := repo.GetRestaurant(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Septime", got.Name)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 48.8534, got.Location.Lat, 1e-9)

	_, err = repo.GetRestaurant(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	many, err := repo.GetRestaurants(ctx, 1, 99, 2)
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, core.ID(1), many[0].ID)
	assert.Equal(t, core.ID(2), many[1].ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCorpusRepository_AddDuplicate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, sampleCorpus()...))

	err := repo.AddRestaurants(ctx, &core.RestaurantRecord{ID: 4, Name: "new"}, &core.RestaurantRecord{ID: 1, Name: "clash"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = repo.GetRestaurant(ctx, 4)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a rejected batch writes nothing")

	err = repo.AddRestaurants(ctx, &core.RestaurantRecord{ID: 7}, &core.RestaurantRecord{ID: 7})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCorpusRepository_ListOrderAndFilter(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.AddRestaurants(ctx, sampleCorpus()...))

	all, err := repo.ListRestaurants(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []core.ID{1, 2, 3}, []core.ID{all[0].ID, all[1].ID, all[2].ID})

	french, err := repo.ListRestaurants(ctx, core.Filter{Country: "france", MaxPrice: 2})
	require.NoError(t, err)
	require.Len(t, french, 1)
	assert.Equal(t, "Le Baratin", french[0].Name)

	starred, err := repo.ListRestaurants(ctx, core.Filter{Stars: []core.Stars{core.StarsOne, core.StarsTwo}})
	require.NoError(t, err)
	assert.Len(t, starred, 2)
}

func TestCorpusRepository_ReplaceCorpus(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.AddRestaurants(ctx, sampleCorpus()...))
	require.NoError(t, repo.SaveManifest(ctx, &core.EmbeddingManifest{Model: "m", Dimension: 3}))

	require.NoError(t, repo.ReplaceCorpus(ctx, &core.RestaurantRecord{ID: 10, Name: "only"}))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Nil(t, manifest, "replacing the corpus drops the manifest")
}

func TestCorpusRepository_ForEachBatch(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	var records []*core.RestaurantRecord
	for i := 10; i >= 0; i-- {
		records = append(records, &core.RestaurantRecord{ID: core.ID(i), Name: "r"})
	}
	require.NoError(t, repo.AddRestaurants(ctx, records...))

	var sizes []int
	var seen []core.ID
	err := repo.ForEachBatch(ctx, 4, func(batch []*core.RestaurantRecord) error {
		sizes = append(sizes, len(batch))
		for _, r := range batch {
			seen = append(seen, r.ID)
		}
		// Writing from inside the callback must not deadlock.
		return repo.UpdateEmbeddings(ctx, core.EmbeddingUpdate{ID: batch[0].ID, Vector: []float32{1}})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 3}, sizes)
	assert.Equal(t, []core.ID{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seen)

	stop := errors.New("stop")
	calls := 0
	err = repo.ForEachBatch(ctx, 4, func([]*core.RestaurantRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, repo.ForEachBatch(ctx, 0, nil), storage.ErrInvalidQuery)
}

func TestCorpusRepository_UpdateEmbeddings(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.AddRestaurants(ctx, sampleCorpus()...))

	hash := core.HashDescription("Playful kaiseki")
	require.NoError(t, repo.UpdateEmbeddings(ctx, core.EmbeddingUpdate{ID: 1, Vector: []float32{0.5, 0.5}, DescriptionHash: hash}))

	got, err := repo.GetRestaurant(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, got.Vector)
	assert.True(t, got.EmbeddingFresh())

	require.NoError(t, repo.UpdateEmbeddings(ctx, core.EmbeddingUpdate{ID: 1}))
	got, err = repo.GetRestaurant(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got.Vector)

	err = repo.UpdateEmbeddings(ctx,
		core.EmbeddingUpdate{ID: 2, Vector: []float32{1}},
		core.EmbeddingUpdate{ID: 42, Vector: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err = repo.GetRestaurant(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got.Vector, "a rejected update writes nothing")
}

func TestCorpusRepository_Manifest(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Nil(t, manifest)

	require.NoError(t, repo.SaveManifest(ctx, &core.EmbeddingManifest{Model: "all-minilm", Dimension: 384}))
	manifest, err = repo.LoadManifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, "all-minilm", manifest.Model)
	assert.Equal(t, 384, manifest.Dimension)
	assert.False(t, manifest.UpdatedAt.IsZero())
}
