package reembed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/etoile/ai/mock"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.CorpusRepository {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return repo
}

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		PoolSize:       2,
		ReportInterval: 3,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func newTestReembedder(t *testing.T, repo *badger.CorpusRepository, embedder *mock.MockEmbedder, config *Config, progress io.Writer) *Reembedder {
	t.Helper()
	r, err := NewReembedder(repo, embedder, config, progress)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func TestNewReembedder_Validation(t *testing.T) {
	repo := setupTestDB(t)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewReembedder(repo, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	bad := testConfig()
	bad.BatchSize = 0
	_, err = NewReembedder(repo, mock.NewMockEmbedder(), bad, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, restaurants(10)...))

	var buf bytes.Buffer
	embedder := mock.NewMockEmbedder()
	summary, err := newTestReembedder(t, repo, embedder, testConfig(), &buf).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 10, summary.Embedded)
	assert.Empty(t, summary.Failures)

	stored, err := repo.ListRestaurants(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 10)
	for _, record := range stored {
		assert.Len(t, record.Vector, mock.DefaultDimension, "record %d should have embedding", record.ID)
		assert.True(t, record.EmbeddingFresh())
	}

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, "mock-fnv", manifest.Model)
	assert.Equal(t, mock.DefaultDimension, manifest.Dimension)

	assert.Contains(t, buf.String(), "10/10", "should show completion")
}

func TestReembedder_FailedRecordDoesNotAbortPass(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, restaurants(10)...))

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if strings.HasSuffix(text, "number 3") {
			return nil, errors.New("embedding service returned 500")
		}
		return mock.NewMockEmbedder().EmbedText(ctx, text)
	}

	var buf bytes.Buffer
	summary, err := newTestReembedder(t, repo, embedder, testConfig(), &buf).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 9, summary.Embedded)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, core.ID(3), summary.Failures[0].RecordID)
	assert.ErrorIs(t, summary.Failures[0], core.ErrEmbeddingFailure)

	failed, err := repo.GetRestaurant(ctx, 3)
	require.NoError(t, err)
	assert.False(t, failed.HasEmbedding())

	ok, err := repo.GetRestaurant(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok.HasEmbedding(), "successful records commit")
	assert.Contains(t, buf.String(), "1 failed")
}

func TestReembedder_SecondRunReusesFreshVectors(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, restaurants(5)...))

	embedder := mock.NewMockEmbedder()
	r := newTestReembedder(t, repo, embedder, testConfig(), nil)
	_, err := r.Run(ctx)
	require.NoError(t, err)

	embedder.Reset()
	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Embedded)
	assert.Equal(t, 5, summary.Reused)
	assert.Zero(t, embedder.CallCount(), "fresh vectors are not recomputed")
}

func TestReembedder_ModelMismatch(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.AddRestaurants(ctx, restaurants(2)...))
	require.NoError(t, repo.SaveManifest(ctx, &core.EmbeddingManifest{
		Model:     "some-other-model",
		Dimension: 768,
		UpdatedAt: time.Now(),
	}))

	embedder := mock.NewMockEmbedder()
	_, err := newTestReembedder(t, repo, embedder, testConfig(), nil).Run(ctx)
	require.ErrorIs(t, err, ErrModelMismatch)
	assert.Zero(t, embedder.CallCount())

	forced := testConfig()
	forced.Force = true
	summary, err := newTestReembedder(t, repo, embedder, forced, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Embedded)

	manifest, err := repo.LoadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mock-fnv", manifest.Model)
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	repo := setupTestDB(t)

	var buf bytes.Buffer
	summary, err := newTestReembedder(t, repo, mock.NewMockEmbedder(), DefaultConfig(), &buf).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Contains(t, buf.String(), "0 records")
}

func TestReembedder_ContextCanceled(t *testing.T) {
	repo := setupTestDB(t)
	require.NoError(t, repo.AddRestaurants(context.Background(), restaurants(4)...))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReembedder(t, repo, mock.NewMockEmbedder(), testConfig(), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
