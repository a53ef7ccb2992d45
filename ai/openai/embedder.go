package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// probeText is embedded once at construction to confirm the model is loaded
// and produces vectors of the configured dimension.
const probeText = "michelin"

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(ctx context.Context, config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken("none"),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrModelUnavailable, err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrModelUnavailable, err)
	}

	e := &Embedder{
		embedder:  embedder,
		model:     config.EmbeddingModel,
		dimension: config.Dimension,
		logger: slog.Default().With("component", "openai-embedder",
			"model", config.EmbeddingModel),
	}
	if err := e.probe(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
// The model is probed once; an unreachable model or one whose vectors do not
// have config.Dimension elements fails with ai.ErrModelUnavailable.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(ctx context.Context, config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(ctx, config)
}

func (e *Embedder) probe(ctx context.Context) error {
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{probeText})
	if err != nil {
		return fmt.Errorf("%w: model %q: %v", ai.ErrModelUnavailable, e.model, err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("%w: model %q returned %d vectors for probe", ai.ErrModelUnavailable, e.model, len(vectors))
	}
	if got := len(vectors[0]); got != e.dimension {
		return fmt.Errorf("%w: model %q produces %d dimensions, configured for %d",
			ai.ErrModelUnavailable, e.model, got, e.dimension)
	}
	e.logger.Debug("embedding model ready", "dimension", e.dimension)
	return nil
}

// EmbedText generates a vector embedding for a single text string.
// Blank text yields the zero vector without a model call.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Blank entries receive the zero vector; the rest are sent to the model in
// one request (split by the configured batch size).
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	out := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, e.dimension)
			continue
		}
		pending = append(pending, text)
		positions = append(positions, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, pending)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(pending), "err", err)
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(pending))
	}
	for j, vec := range vectors {
		if len(vec) != e.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", core.ErrMissingVectorDimension, len(vec), e.dimension)
		}
		out[positions[j]] = vec
	}
	return out, nil
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
