package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/config"
)

// stubEmbedder returns fixed vectors and counts calls.
type stubEmbedder struct {
	dims    int
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.vectors != nil {
		return s.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Name() string    { return "stub" }

func TestService_EmbedMany(t *testing.T) {
	svc := NewService(&stubEmbedder{dims: 4})

	vectors, err := svc.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, 4, svc.Dimensions())
}

func TestService_EmbedManyEmpty(t *testing.T) {
	stub := &stubEmbedder{dims: 4}
	vectors, err := NewService(stub).EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, 0, stub.calls, "no upstream call for empty input")
}

func TestService_UpstreamErrorWrapped(t *testing.T) {
	svc := NewService(&stubEmbedder{dims: 4, err: errors.New("429 too many requests")})

	_, err := svc.EmbedMany(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Contains(t, err.Error(), "429")
}

func TestService_CountMismatch(t *testing.T) {
	svc := NewService(&stubEmbedder{dims: 2, vectors: [][]float32{{1, 0}}})

	_, err := svc.EmbedMany(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingService)
}

func TestService_DimensionMismatch(t *testing.T) {
	svc := NewService(&stubEmbedder{dims: 3, vectors: [][]float32{{1, 0}}})

	_, err := svc.EmbedOne(context.Background(), "a")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestService_QueryCache(t *testing.T) {
	stub := &stubEmbedder{dims: 2}
	svc := NewService(stub, WithQueryCache(time.Minute))
	ctx := context.Background()

	first, err := svc.EmbedOne(ctx, "capital of france")
	require.NoError(t, err)
	second, err := svc.EmbedOne(ctx, "capital of france")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.calls)

	_, err = svc.EmbedOne(ctx, "something else")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestService_NoCacheByDefault(t *testing.T) {
	stub := &stubEmbedder{dims: 2}
	svc := NewService(stub)

	_, _ = svc.EmbedOne(context.Background(), "q")
	_, _ = svc.EmbedOne(context.Background(), "q")
	assert.Equal(t, 2, stub.calls)
}

func TestOllamaEmbedder_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{0.1, 0.2, 0.3})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder("nomic-embed-text", 3, srv.URL+"/")
	vectors, err := e.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())
}

func TestOllamaEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder("missing", 3, srv.URL).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("test-key", "text-embedding-3-small", 2, srv.URL)
	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestOpenAIEmbedder_RequestsConfiguredDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  any
	}{
		{"text-embedding-3-small", float64(2)},
		{"text-embedding-ada-002", nil},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"object": "list", "data": [{"object": "embedding", "index": 0, "embedding": [1, 0]}]}`))
			}))
			defer srv.Close()

			e := NewOpenAIEmbedder("test-key", tt.model, 2, srv.URL)
			_, err := e.Embed(context.Background(), []string{"first"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, body["dimensions"])
		})
	}
}

func TestToChromemFunc(t *testing.T) {
	fn := ToChromemFunc(NewService(&stubEmbedder{dims: 2}))
	v, err := fn(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, v, 2)
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewFromConfig(config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "m", Dimensions: 2})
	assert.Error(t, err, "missing key should fail")

	t.Setenv("OPENAI_API_KEY", "k")
	e, err := NewFromConfig(config.EmbeddingConfig{Provider: config.ProviderOpenAI, Model: "m", Dimensions: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Dimensions())

	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "")
	_, err = NewFromConfig(config.EmbeddingConfig{Provider: config.ProviderAzure, Model: "m", Dimensions: 2})
	assert.Error(t, err, "azure needs an endpoint")

	e, err = NewFromConfig(config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text", Dimensions: 768})
	require.NoError(t, err)
	assert.Equal(t, "ollama/nomic-embed-text", e.Name())

	_, err = NewFromConfig(config.EmbeddingConfig{Provider: "groq"})
	assert.Error(t, err)
}
