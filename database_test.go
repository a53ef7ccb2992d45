package etoile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/etoile/ai/mock"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/geo"
	"github.com/poiesic/etoile/ingestion"
	"github.com/poiesic/etoile/reembed"
	"github.com/poiesic/etoile/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpusCSV = `UniqueID,name,country,ISO Code,food type,stars_label,description,latitude_and_longitude
0,Le Cinq,France,FRA,Modern Cuisine,3,Refined seasonal tasting menu,"{'lat': 48.8686, 'lng': 2.3008}"
1,Septime,France,FRA,Modern Cuisine,1,Natural wine and vegetables,"{'lat': 48.8535, 'lng': 2.3810}"
2,Sushi Saito,Japan,JPN,Sushi,3,Edomae sushi counter,"{'lat': 35.6664, 'lng': 139.7404}"
3,Chez Bib,France,FRA,Bistro,0,,"{'lat': 48.8647, 'lng': 2.3780}"
`

func newTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()
	opts = append([]DatabaseOption{WithInMemory(), WithAIProvider(mock.NewMockProvider())}, opts...)
	db, err := NewDatabase(context.Background(), "", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadCorpus(t *testing.T, db *Database) {
	t.Helper()
	ctx := context.Background()

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.ImportCSV(ctx, strings.NewReader(corpusCSV), ingestion.ImportOptions{Replace: true})
	require.NoError(t, err)

	cfg := reembed.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	r, err := db.NewReembedder(cfg, nil)
	require.NoError(t, err)
	defer r.Release()
	summary, err := r.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, summary.Failures)
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(context.Background(), tmpDir, WithAIProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.Repository())
		assert.NotNil(t, db.Embedder())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(context.Background(), tmpFile, WithAIProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		db, err := NewDatabase(context.Background(), "", WithInMemory(),
			WithAIProvider(mock.NewMockProvider()), WithStrategy("faiss"))
		assert.ErrorIs(t, err, search.ErrUnknownStrategy)
		assert.Nil(t, db)
	})
}

func TestDatabase_CloseReleasesProvider(t *testing.T) {
	provider := mock.NewMockProvider()
	db, err := NewDatabase(context.Background(), "", WithInMemory(), WithAIProvider(provider))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestDatabase_MatchStrategiesAgree(t *testing.T) {
	ctx := context.Background()
	query := "Edomae sushi counter"

	var rankings [][]core.ID
	for _, strategy := range []search.Strategy{search.StrategyInMemory, search.StrategyStore} {
		t.Run(string(strategy), func(t *testing.T) {
			db := newTestDatabase(t, WithStrategy(strategy))
			loadCorpus(t, db)

			matcher, err := db.NewMatcher(ctx)
			require.NoError(t, err)

			results, err := matcher.Match(ctx, query, search.DefaultParams())
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "Sushi Saito", results[0].Record.Name)
			assert.InDelta(t, 1.0, results[0].Score, 1e-4)

			ids := make([]core.ID, len(results))
			for i, r := range results {
				ids[i] = r.Record.ID
			}
			rankings = append(rankings, ids)
		})
	}
	require.Len(t, rankings, 2)
	assert.Equal(t, rankings[0], rankings[1])
}

func TestDatabase_NoMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCorpus(t, db)

	matcher, err := db.NewMatcher(ctx)
	require.NoError(t, err)

	params := search.DefaultParams()
	params.Threshold = 0.99
	_, err = matcher.Match(ctx, "a query that matches nothing in particular", params)
	assert.ErrorIs(t, err, core.ErrNoMatchFound)
}

func TestDatabase_MatcherRefusesOtherModel(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCorpus(t, db)

	// Same dimension, different model: every vector passes the length check.
	other := &core.EmbeddingManifest{Model: "all-minilm", Dimension: mock.DefaultDimension}
	require.NoError(t, db.Repository().SaveManifest(ctx, other))

	_, err := db.NewMatcher(ctx)
	assert.ErrorIs(t, err, reembed.ErrModelMismatch)

	other.Model = db.Embedder().Model()
	other.Dimension = 768
	require.NoError(t, db.Repository().SaveManifest(ctx, other))
	_, err = db.NewMatcher(ctx)
	assert.ErrorIs(t, err, reembed.ErrModelMismatch)
}

func TestDatabase_ExternalStoresNotConfigured(t *testing.T) {
	ctx := context.Background()

	db := newTestDatabase(t, WithStrategy(search.StrategyPostgres))
	_, err := db.NewMatcher(ctx)
	assert.ErrorIs(t, err, ErrPostgresNotConfigured)
	_, err = db.SyncPostgres(ctx)
	assert.ErrorIs(t, err, ErrPostgresNotConfigured)

	db = newTestDatabase(t, WithStrategy(search.StrategyQdrant))
	_, err = db.NewMatcher(ctx)
	assert.ErrorIs(t, err, ErrQdrantNotConfigured)
	_, err = db.SyncQdrant(ctx)
	assert.ErrorIs(t, err, ErrQdrantNotConfigured)
}

func TestDatabase_Nearest(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCorpus(t, db)

	// Place de la Bastille.
	bastille := core.Location{Lat: 48.8532, Lng: 2.3691}
	neighbors, err := db.Nearest(ctx, bastille, 2, core.Filter{})
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "Septime", neighbors[0].Record.Name)
	assert.Equal(t, "Chez Bib", neighbors[1].Record.Name)

	starred, err := db.Nearest(ctx, bastille, 0, core.Filter{Stars: []core.Stars{core.StarsThree}})
	require.NoError(t, err)
	require.Len(t, starred, 2)
	assert.Equal(t, "Le Cinq", starred[0].Record.Name)
	assert.Equal(t, "Sushi Saito", starred[1].Record.Name)
}

func TestDatabase_CountrySummary(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCorpus(t, db)

	stats, err := db.CountrySummary(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	france := stats[0]
	assert.Equal(t, "France", france.Country, fmt.Sprintf("%+v", stats))
	assert.Equal(t, 3, france.Total)
	assert.Equal(t, 1, france.ByStars[core.StarsBib])
	assert.Equal(t, 1, france.ByStars[core.StarsThree])
	assert.Equal(t, "Japan", stats[1].Country)
}

func TestDatabase_WithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(ctx, "", WithInMemory(), WithoutEmbedder())
	require.NoError(t, err)
	defer db.Close()

	assert.Nil(t, db.Embedder())
	_, err = db.NewMatcher(ctx)
	assert.ErrorIs(t, err, ErrEmbedderNotLoaded)
	_, err = db.NewReembedder(nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderNotLoaded)

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.ImportCSV(ctx, strings.NewReader(corpusCSV), ingestion.ImportOptions{})
	require.NoError(t, err)

	neighbors, err := db.NearestBy(ctx, geo.Haversine, core.Location{Lat: 35.68, Lng: 139.76}, 1, core.Filter{})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "Sushi Saito", neighbors[0].Record.Name)
	assert.Less(t, neighbors[0].Distance, 5.0, "kilometres")
}
