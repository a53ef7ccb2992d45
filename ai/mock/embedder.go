package mock

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/poiesic/etoile/similarity"
)

// DefaultDimension matches all-MiniLM-L6-v2.
const DefaultDimension = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set. If nil and
	// EmbedTextFunc is set, EmbedTexts calls EmbedTextFunc per text.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dimension int
	callCount atomic.Int64
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dimension: DefaultDimension}
}

// NewMockEmbedderWithDimension creates a mock embedder producing dim-length vectors.
func NewMockEmbedderWithDimension(dim int) *MockEmbedder {
	return &MockEmbedder{dimension: dim}
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return generateDeterministicVector(text, m.dimension), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if m.EmbedTextFunc != nil {
			vec, err := m.EmbedTextFunc(ctx, text)
			if err != nil {
				return nil, err
			}
			embeddings[i] = vec
			continue
		}
		embeddings[i] = generateDeterministicVector(text, m.dimension)
	}
	return embeddings, nil
}

// Dimension returns the vector length produced by the default behavior.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

// Model identifies the mock so manifests written in tests are distinguishable.
func (m *MockEmbedder) Model() string {
	return "mock-fnv"
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount.Store(0)
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// generateDeterministicVector creates a deterministic unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
// Blank text yields the zero vector.
func generateDeterministicVector(text string, dim int) []float32 {
	vector := make([]float32, dim)
	if strings.TrimSpace(text) == "" {
		return vector
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		// Centered on zero so unrelated texts are not all strongly similar.
		vector[i] = float32(seed%2000)/1000.0 - 1.0
	}
	return similarity.Normalize(vector)
}
