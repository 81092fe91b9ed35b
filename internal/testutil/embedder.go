// Package testutil holds deterministic fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// WordEmbedder returns bag-of-words vectors: each lower-cased word hashes
// into one dimension and the result is L2-normalized. Texts sharing words
// are therefore close in cosine space, which is enough to drive retrieval
// tests.
type WordEmbedder struct {
	Dims int
	Err  error

	mu    sync.Mutex
	calls int
}

func NewWordEmbedder(dims int) *WordEmbedder {
	return &WordEmbedder{Dims: dims}
}

func (e *WordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Vector(t)
	}
	return out, nil
}

func (e *WordEmbedder) Dimensions() int { return e.Dims }
func (e *WordEmbedder) Name() string    { return "word-hash" }

// Calls returns how many times Embed was invoked.
func (e *WordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Vector embeds a single text.
func (e *WordEmbedder) Vector(text string) []float32 {
	vec := make([]float32, e.Dims)
	for _, w := range Words(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.Dims)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// Keep empty text off the origin so cosine similarity is defined.
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "of": true, "what": true,
	"to": true, "and": true, "in": true, "are": true, "how": true, "do": true,
}

// Words lower-cases text and splits it into words, dropping stop words.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// ErrUpstream is a canned upstream failure.
var ErrUpstream = errors.New("upstream unavailable")
