package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Service wraps an Embedder with the checks every caller needs: one vector
// per input and a fixed dimension. It never retries.
type Service struct {
	embedder Embedder
	cache    *cache.Cache
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithQueryCache caches EmbedOne results for ttl. A zero ttl disables it.
func WithQueryCache(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// NewService creates a Service around e.
func NewService(e Embedder, opts ...ServiceOption) *Service {
	s := &Service{embedder: e}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions returns the fixed vector length of this deployment.
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}

// Model returns the embedding model name.
func (s *Service) Model() string {
	return s.embedder.Name()
}

// EmbedMany embeds passages in order.
func (s *Service) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingService, s.embedder.Name(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			ErrEmbeddingService, s.embedder.Name(), len(vectors), len(texts))
	}

	want := s.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != want {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), want)
		}
	}
	return vectors, nil
}

// EmbedOne embeds a single query.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := s.embedder.Name() + "\x00" + text
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.([]float32), nil
		}
	}

	vectors, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, vectors[0], cache.DefaultExpiration)
	}
	return vectors[0], nil
}
