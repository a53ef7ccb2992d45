package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/etoile/ai/mock"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/reembed"
	"github.com/poiesic/etoile/storage"
	"github.com/poiesic/etoile/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *badger.CorpusRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return repo
}

func newTestPipeline(t *testing.T, repo storage.CorpusRepository, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(repo, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline_RequiresRepository(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
}

func TestPipeline_ImportCSV(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newTestPipeline(t, repo)

	result, err := p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
	assert.Nil(t, result.Embedding)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	cinq, err := repo.GetRestaurant(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, cinq.Vector)

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Nil(t, manifest, "no embedder, no manifest")
}

func TestPipeline_ImportWithEmbedder(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	embedder := mock.NewMockEmbedder()
	p := newTestPipeline(t, repo, WithEmbedder(embedder), WithPoolSize(2))

	result, err := p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{Replace: true})
	require.NoError(t, err)
	require.NotNil(t, result.Embedding)
	// Le Cinq's imported 2-dim vector does not match the model and is recomputed.
	assert.Equal(t, 3, result.Embedding.Embedded)
	assert.Equal(t, 1, result.Embedding.Empty)

	records, err := repo.ListRestaurants(ctx, core.Filter{})
	require.NoError(t, err)
	for _, record := range records {
		if record.HasDescription() {
			assert.Len(t, record.Vector, mock.DefaultDimension, "record %d", record.ID)
		} else {
			assert.Nil(t, record.Vector)
		}
	}

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, embedder.Model(), manifest.Model)
}

func TestPipeline_EmbeddingFailureStillImports(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "Edomae sushi counter" {
			return nil, errors.New("rate limited")
		}
		return mock.NewMockEmbedder().EmbedText(ctx, text)
	}
	p := newTestPipeline(t, repo, WithEmbedder(embedder), WithRetry(1, time.Millisecond))

	result, err := p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
	require.Len(t, result.Embedding.Failures, 1)
	assert.Equal(t, core.ID(1), result.Embedding.Failures[0].RecordID)

	saito, err := repo.GetRestaurant(ctx, 1)
	require.NoError(t, err)
	assert.False(t, saito.HasEmbedding())
}

func TestPipeline_AppendRejectsExistingIDs(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newTestPipeline(t, repo)

	_, err := p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{})
	require.NoError(t, err)

	_, err = p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	result, err := p.ImportCSV(ctx, strings.NewReader(cleanedCorpus), ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Imported)
}

func TestPipeline_AppendRefusesOtherModel(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.AddRestaurants(ctx, &core.RestaurantRecord{
		ID: 1, Name: "Le Cinq", Stars: core.StarsThree, Description: "Refined seasonal tasting menu",
	}))
	stored := &core.EmbeddingManifest{Model: "all-minilm", Dimension: mock.DefaultDimension}
	require.NoError(t, repo.SaveManifest(ctx, stored))

	embedder := mock.NewMockEmbedder()
	p := newTestPipeline(t, repo, WithEmbedder(embedder))

	records := []*core.RestaurantRecord{
		{ID: 2, Name: "Sushi Saito", Stars: core.StarsThree, Description: "Edomae sushi counter"},
	}
	_, err := p.Import(ctx, records, ImportOptions{})
	assert.ErrorIs(t, err, reembed.ErrModelMismatch)
	assert.Zero(t, embedder.CallCount(), "nothing is embedded")

	_, err = repo.GetRestaurant(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound, "nothing is written")
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", manifest.Model)

	// Replacing the corpus re-embeds everything under the new model.
	result, err := p.Import(ctx, records, ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	manifest, err = repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, embedder.Model(), manifest.Model)
}

func TestPipeline_AppendSameModel(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newTestPipeline(t, repo, WithEmbedder(mock.NewMockEmbedder()))

	_, err := p.Import(ctx, []*core.RestaurantRecord{
		{ID: 1, Name: "Le Cinq", Stars: core.StarsThree, Description: "Refined seasonal tasting menu"},
	}, ImportOptions{Replace: true})
	require.NoError(t, err)

	result, err := p.Import(ctx, []*core.RestaurantRecord{
		{ID: 2, Name: "Sushi Saito", Stars: core.StarsThree, Description: "Edomae sushi counter"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Embedding.Embedded)

	saito, err := repo.GetRestaurant(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, saito.Vector, mock.DefaultDimension)
}

func TestPipeline_Validation(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	p := newTestPipeline(t, repo)

	records := []*core.RestaurantRecord{
		{ID: 1, Name: "Good", Stars: core.StarsOne},
		{ID: 2, Name: "", Stars: core.StarsOne},
	}

	_, err := p.Import(ctx, records, ImportOptions{})
	assert.ErrorIs(t, err, core.ErrEmptyName)

	result, err := p.Import(ctx, records, ImportOptions{SkipInvalid: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	dup := []*core.RestaurantRecord{
		{ID: 7, Name: "A", Stars: core.StarsNone},
		{ID: 7, Name: "B", Stars: core.StarsNone},
	}
	_, err = p.Import(ctx, dup, ImportOptions{Replace: true})
	assert.ErrorIs(t, err, ErrDuplicateID)
}
