package reembed

import (
	"errors"
	"fmt"

	"github.com/poiesic/etoile/ai"
	"github.com/poiesic/etoile/core"
)

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRepositoryRequired is returned when no corpus repository is provided.
	ErrRepositoryRequired = errors.New("corpus repository required")

	// ErrInvalidConfig is returned for unusable batch settings.
	ErrInvalidConfig = errors.New("invalid reembed configuration")

	// ErrModelMismatch is returned when the stored vectors were produced by a
	// different model or dimension than the current embedder. Mixing vectors
	// from two models makes similarity scores meaningless, so only a forced
	// full pass may replace them.
	ErrModelMismatch = errors.New("corpus was embedded with a different model")
)

// EmbeddingFailure reports that a single record could not be embedded.
// It matches core.ErrEmbeddingFailure with errors.Is.
type EmbeddingFailure struct {
	RecordID core.ID
	Err      error
}

// CheckManifest returns ErrModelMismatch when manifest was written by a
// different model or dimension than embedder. A nil manifest matches.
func CheckManifest(manifest *core.EmbeddingManifest, embedder ai.Embedder) error {
	if manifest == nil {
		return nil
	}
	if manifest.Model != embedder.Model() || manifest.Dimension != embedder.Dimension() {
		return fmt.Errorf("%w: stored %s/%d, embedder %s/%d", ErrModelMismatch,
			manifest.Model, manifest.Dimension, embedder.Model(), embedder.Dimension())
	}
	return nil
}

func (f *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embed restaurant %d: %v", f.RecordID, f.Err)
}

func (f *EmbeddingFailure) Unwrap() []error {
	return []error{core.ErrEmbeddingFailure, f.Err}
}
