package vectordb

import (
	"context"

	"github.com/ziadkadry99/docqa/internal/chunker"
)

// VectorStore is the durable store of embedded chunks.
type VectorStore interface {
	// Add upserts one record per chunk and returns how many were written.
	Add(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (int, error)

	// SimilaritySearch returns at most k results by ascending distance.
	// An empty store yields an empty slice, not an error.
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// DeleteBySource removes every record of a source file.
	DeleteBySource(ctx context.Context, source string) (int, error)

	// Prune removes the records of source whose ids are not in keep.
	Prune(ctx context.Context, source string, keep []string) (int, error)

	// SyncWithFilesystem deletes records whose source file is gone.
	SyncWithFilesystem(ctx context.Context) (*SyncStats, error)

	// Sources lists the distinct sources in the index.
	Sources(ctx context.Context) ([]string, error)

	// Stats summarizes the index.
	Stats(ctx context.Context) (*Stats, error)

	// Clear wipes the index.
	Clear(ctx context.Context) (bool, error)

	// Count returns the total number of records.
	Count() int
}
