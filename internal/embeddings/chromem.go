package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc converts a Service into a chromem.EmbeddingFunc, used when
// chromem has to embed a document that arrives without a vector.
func ToChromemFunc(s *Service) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := s.EmbedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("chromem embedding: %w", err)
		}
		return v, nil
	}
}
