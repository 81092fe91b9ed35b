package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingService wraps any upstream embedding failure.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrDimensionMismatch is returned when a vector does not have the
	// deployment's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
