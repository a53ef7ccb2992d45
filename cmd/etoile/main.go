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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/etoile"
	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/config"
	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/geo"
	"github.com/poiesic/etoile/ingestion"
	"github.com/poiesic/etoile/reembed"
	"github.com/poiesic/etoile/search"
	"github.com/poiesic/etoile/similarity"
	"github.com/urfave/cli/v2"
)

// newProvider overrides the embedding provider when set. Tests use it to
// avoid a live embedding service.
var newProvider func() ai.AIProvider

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := newApp(cfg).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(cfg *config.Config) *cli.App {
	postgresDSN := ""
	if cfg.HasPostgres() {
		postgresDSN = cfg.PostgresDSN()
	}

	return &cli.App{
		Name:  "etoile",
		Usage: "Semantic search over the Michelin restaurant guide",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   cfg.DBPath,
				EnvVars: []string{config.EnvDBPath},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				Value:   cfg.EmbeddingHost,
				EnvVars: []string{config.EnvEmbeddingHost},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   cfg.EmbeddingModel,
				EnvVars: []string{config.EnvEmbeddingModel},
			},
			&cli.IntFlag{
				Name:    "embedding-dimension",
				Usage:   "Expected vector length of the embedding model",
				Value:   cfg.EmbeddingDimension,
				EnvVars: []string{config.EnvEmbeddingDimension},
			},
			&cli.StringFlag{
				Name:    "strategy",
				Usage:   "Similarity search strategy (memory, store, postgres, qdrant)",
				Value:   string(cfg.Strategy),
				EnvVars: []string{config.EnvStrategy},
			},
			&cli.StringFlag{
				Name:  "postgres-dsn",
				Usage: "PostgreSQL connection string for the pgvector store",
				Value: postgresDSN,
			},
			&cli.StringFlag{
				Name:    "qdrant-addr",
				Usage:   "Qdrant gRPC address",
				Value:   cfg.QdrantAddr,
				EnvVars: []string{config.EnvQdrantAddr},
			},
			&cli.StringFlag{
				Name:    "qdrant-collection",
				Usage:   "Qdrant collection name",
				Value:   cfg.QdrantCollection,
				EnvVars: []string{config.EnvQdrantCollection},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "Load a cleaned restaurant CSV into the database",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "csv",
						Usage:    "Path to the cleaned restaurant CSV",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "append",
						Usage: "Add to the existing corpus instead of replacing it",
					},
					&cli.BoolFlag{
						Name:  "skip-invalid",
						Usage: "Skip rows that fail validation",
					},
					&cli.BoolFlag{
						Name:  "embed",
						Usage: "Embed descriptions while importing",
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Embed every restaurant description in the corpus",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent embedding requests",
						Value: 2,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed every description, even when the stored vector is current",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Also write the embedded corpus to this CSV file",
					},
				},
			},
			{
				Name:      "match",
				Usage:     "Find restaurants whose description matches a query",
				ArgsUsage: "QUERY",
				Action:    matchCommand,
				Flags: append([]cli.Flag{
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum cosine similarity (exclusive)",
						Value: float64(similarity.DefaultThreshold),
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
						Value:   similarity.DefaultTopK,
					},
					&cli.IntFlag{
						Name:  "candidate-cap",
						Usage: "Number of ranked candidates considered before deduplication",
						Value: similarity.DefaultCandidateCap,
					},
					&cli.StringFlag{
						Name:  "dedup",
						Usage: "Deduplicate results by id or name",
						Value: "id",
					},
				}, filterFlags()...),
			},
			{
				Name:   "nearest",
				Usage:  "Find the restaurants closest to a point",
				Action: nearestCommand,
				Flags: append([]cli.Flag{
					&cli.Float64Flag{
						Name:     "lat",
						Usage:    "Latitude in degrees",
						Required: true,
					},
					&cli.Float64Flag{
						Name:     "lng",
						Usage:    "Longitude in degrees",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "Number of restaurants to return",
						Value:   geo.DefaultCount,
					},
					&cli.StringFlag{
						Name:  "metric",
						Usage: "Distance metric (planar, haversine)",
						Value: "planar",
					},
				}, filterFlags()...),
			},
			{
				Name:   "stats",
				Usage:  "Show corpus size, embedding model and per-country counts",
				Action: statsCommand,
			},
			{
				Name:   "sync-postgres",
				Usage:  "Copy the corpus and its vectors into PostgreSQL",
				Action: syncPostgresCommand,
			},
			{
				Name:   "sync-qdrant",
				Usage:  "Upload embedded restaurants to Qdrant",
				Action: syncQdrantCommand,
			},
		},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "country", Usage: "Only restaurants in this country"},
		&cli.StringFlag{Name: "iso", Usage: "Only restaurants with this ISO country code"},
		&cli.StringFlag{Name: "cuisine", Usage: "Only restaurants serving this cuisine"},
		&cli.StringSliceFlag{Name: "stars", Usage: "Only these distinctions (0 for Bib Gourmand, 1-3 for stars)"},
		&cli.IntFlag{Name: "min-price", Usage: "Minimum price level"},
		&cli.IntFlag{Name: "max-price", Usage: "Maximum price level"},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// storeNeeds says which optional parts of the Database a command uses.
type storeNeeds struct {
	model    bool
	postgres bool
	qdrant   bool
}

func openDatabase(ctx context.Context, c *cli.Context, needs storeNeeds) (*etoile.Database, error) {
	strategy, err := search.ParseStrategy(c.String("strategy"))
	if err != nil {
		return nil, err
	}

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithDimension(c.Int("embedding-dimension")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts := []etoile.DatabaseOption{
		etoile.WithAIConfig(aiConfig),
		etoile.WithStrategy(strategy),
		etoile.WithLogger(slog.Default()),
	}
	switch {
	case !needs.model:
		opts = append(opts, etoile.WithoutEmbedder())
	case newProvider != nil:
		opts = append(opts, etoile.WithAIProvider(newProvider()))
	}
	if needs.postgres || (needs.model && strategy == search.StrategyPostgres) {
		dsn := c.String("postgres-dsn")
		if dsn == "" {
			return nil, fmt.Errorf("postgres-dsn is required")
		}
		opts = append(opts, etoile.WithPostgres(dsn))
	}
	if needs.qdrant || (needs.model && strategy == search.StrategyQdrant) {
		opts = append(opts, etoile.WithQdrant(c.String("qdrant-addr"), c.String("qdrant-collection")))
	}

	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := etoile.NewDatabase(ctx, dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func parseFilter(c *cli.Context) (core.Filter, error) {
	filter := core.Filter{
		Country:  c.String("country"),
		ISOCode:  c.String("iso"),
		Cuisine:  c.String("cuisine"),
		MinPrice: c.Int("min-price"),
		MaxPrice: c.Int("max-price"),
	}
	for _, raw := range c.StringSlice("stars") {
		stars, err := ingestion.ParseStars(raw)
		if err != nil {
			return core.Filter{}, err
		}
		if !stars.Known() {
			return core.Filter{}, fmt.Errorf("%w: %q", core.ErrInvalidStars, raw)
		}
		filter.Stars = append(filter.Stars, stars)
	}
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return core.Filter{}, core.ErrNegativePrice
	}
	return filter, nil
}

func importCommand(c *cli.Context) error {
	ctx := context.Background()

	embed := c.Bool("embed")
	db, err := openDatabase(ctx, c, storeNeeds{model: embed})
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(c.String("csv"))
	if err != nil {
		return fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	var opts []ingestion.Option
	if embed {
		opts = append(opts, ingestion.WithEmbedder(db.Embedder()))
	}
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	result, err := pipeline.ImportCSV(ctx, f, ingestion.ImportOptions{
		Replace:     !c.Bool("append"),
		SkipInvalid: c.Bool("skip-invalid"),
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Imported %d restaurants (%d skipped)\n", result.Imported, result.Skipped)
	if e := result.Embedding; e != nil {
		fmt.Fprintf(out, "Embedded %d, reused %d, %d without description, %d failed\n",
			e.Embedded, e.Reused, e.Empty, len(e.Failures))
	}
	return nil
}

func embedCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, c, storeNeeds{model: true})
	if err != nil {
		return err
	}
	defer db.Close()

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		PoolSize:       c.Int("pool-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Force:          c.Bool("force"),
	}
	if err := reembedConfig.Validate(); err != nil {
		return err
	}

	reembedder, err := db.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}
	defer reembedder.Release()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if path := c.String("out"); path != "" {
		records, err := db.Repository().ListRestaurants(ctx, core.Filter{})
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := ingestion.WriteCSV(f, records); err != nil {
			f.Close()
			return fmt.Errorf("failed to write corpus: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Wrote %d restaurants to %s\n", len(records), path)
	}
	return nil
}

func matchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}
	dedup, err := similarity.ParseDedupKey(c.String("dedup"))
	if err != nil {
		return err
	}
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	params := search.Params{
		Threshold:    float32(c.Float64("threshold")),
		TopK:         c.Int("top-k"),
		CandidateCap: c.Int("candidate-cap"),
		Dedup:        dedup,
		Filter:       filter,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	db, err := openDatabase(ctx, c, storeNeeds{model: true})
	if err != nil {
		return err
	}
	defer db.Close()

	matcher, err := db.NewMatcher(ctx)
	if err != nil {
		return err
	}

	results, err := matcher.Match(ctx, query, params)
	out := c.App.Writer
	if search.IsNoMatch(err) {
		fmt.Fprintln(out, "No matching restaurants found")
		return nil
	}
	if err != nil {
		return err
	}

	for i, result := range results {
		r := result.Record
		fmt.Fprintf(out, "%2d. %s (%s, %s) %s  score %.3f\n",
			i+1, r.Name, r.Cuisine, r.Country, r.Stars, result.Score)
		if terms := search.MatchedTerms(r.Description, query); len(terms) > 0 {
			fmt.Fprintf(out, "    matched: %s\n", strings.Join(terms, ", "))
		}
	}
	return nil
}

func nearestCommand(c *cli.Context) error {
	ctx := context.Background()

	point := core.Location{Lat: c.Float64("lat"), Lng: c.Float64("lng")}
	if err := core.ValidateLocation(point); err != nil {
		return err
	}
	var metric geo.Metric
	switch strings.ToLower(c.String("metric")) {
	case "planar":
		metric = geo.Planar
	case "haversine":
		metric = geo.Haversine
	default:
		return fmt.Errorf("invalid metric %q: must be one of planar, haversine", c.String("metric"))
	}
	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, c, storeNeeds{})
	if err != nil {
		return err
	}
	defer db.Close()

	neighbors, err := db.NearestBy(ctx, metric, point, c.Int("count"), filter)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(neighbors) == 0 {
		fmt.Fprintln(out, "No located restaurants found")
		return nil
	}
	for i, n := range neighbors {
		fmt.Fprintf(out, "%2d. %s (%s, %s) %s  distance %.4f\n",
			i+1, n.Record.Name, n.Record.Cuisine, n.Record.Country, n.Record.Stars, n.Distance)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, c, storeNeeds{})
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := db.Repository().Count(ctx)
	if err != nil {
		return err
	}
	manifest, err := db.Repository().LoadManifest(ctx)
	if err != nil {
		return err
	}
	summary, err := db.CountrySummary(ctx)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Restaurants: %d\n", count)
	if manifest != nil {
		fmt.Fprintf(out, "Embedding model: %s (%d dimensions, updated %s)\n",
			manifest.Model, manifest.Dimension, manifest.UpdatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Embedding model: none")
	}
	for _, s := range summary {
		fmt.Fprintf(out, "%-24s %5d  bib %d  one %d  two %d  three %d\n", s.Country, s.Total,
			s.ByStars[core.StarsBib], s.ByStars[core.StarsOne], s.ByStars[core.StarsTwo], s.ByStars[core.StarsThree])
	}
	return nil
}

func syncPostgresCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, c, storeNeeds{postgres: true})
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.SyncPostgres(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Synced %d restaurants to PostgreSQL\n", n)
	return nil
}

func syncQdrantCommand(c *cli.Context) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, c, storeNeeds{qdrant: true})
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.SyncQdrant(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Synced %d restaurants to Qdrant\n", n)
	return nil
}
