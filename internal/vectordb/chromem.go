package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/extractor"
)

const (
	DefaultCollection = "documents"
	DefaultBatchSize  = 100
)

// Options configures a ChromemStore.
type Options struct {
	Dir        string // empty keeps the collection in memory
	Compress   bool
	Collection string
	BatchSize  int
	Ledger     *db.DB
	Embeddings *embeddings.Service
	Logger     *zap.Logger
}

// ChromemStore implements VectorStore with chromem-go for vectors and a
// SQLite ledger for per-source bookkeeping.
type ChromemStore struct {
	// Add holds mu shared; deletes, sync and clear hold it exclusively so
	// their before/after counts are exact.
	mu sync.RWMutex

	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
	ledger     *ledger

	name      string
	dir       string
	batchSize int
	logger    *zap.Logger
}

// NewChromemStore opens (or creates) the collection described by opts.
func NewChromemStore(opts Options) (*ChromemStore, error) {
	if opts.Ledger == nil {
		return nil, errors.New("vectordb: ledger database is required")
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var (
		cdb *chromem.DB
		err error
	)
	if opts.Dir != "" {
		cdb, err = chromem.NewPersistentDB(opts.Dir, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", opts.Dir, err)
		}
	} else {
		cdb = chromem.NewDB()
	}

	ef := noEmbedding
	if opts.Embeddings != nil {
		ef = embeddings.ToChromemFunc(opts.Embeddings)
	}

	col, err := cdb.GetOrCreateCollection(opts.Collection, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		db:         cdb,
		collection: col,
		embedFunc:  ef,
		ledger:     &ledger{db: opts.Ledger},
		name:       opts.Collection,
		dir:        opts.Dir,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger,
	}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectordb: records must carry precomputed vectors")
}

// Add upserts chunks with their vectors in batches.
func (s *ChromemStore) Add(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", ErrShapeMismatch, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pinned, err := s.ledger.pinDimensions(ctx, dim)
	if err != nil {
		return 0, err
	}
	if pinned != dim {
		return 0, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, dim, pinned)
	}

	now := time.Now().UTC()
	records := make([]Record, len(chunks))
	for i, c := range chunks {
		source := extractor.NormalizePath(c.Source)
		records[i] = Record{
			ID:     RecordID(source, c.Ordinal, c.Content),
			Text:   c.Content,
			Vector: vectors[i],
			Metadata: Metadata{
				Source:     source,
				Filename:   c.Filename,
				Extension:  c.Extension,
				Segment:    c.Segment,
				Page:       c.Page,
				Ordinal:    c.Ordinal,
				TextLength: len([]rune(c.Content)),
				IndexedAt:  now,
			},
		}
	}

	written := 0
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]

		docs := make([]chromem.Document, len(batch))
		for i, r := range batch {
			docs[i] = chromem.Document{
				ID:        r.ID,
				Content:   r.Text,
				Embedding: r.Vector,
				Metadata:  metadataToMap(r.Metadata),
			}
		}
		if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
			return written, fmt.Errorf("add batch %d-%d: %w", start, end, err)
		}
		if err := s.ledger.upsert(ctx, batch); err != nil {
			return written, err
		}
		written += len(batch)
		s.logger.Debug("indexed batch", zap.Int("start", start), zap.Int("size", len(batch)))
	}

	return written, nil
}

// SimilaritySearch returns the k nearest records to vector.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}

	dim, err := s.ledger.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), dim)
	}

	// chromem-go requires nResults <= collection size.
	k = min(k, count)

	results, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: mapToMetadata(r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}
	return out, nil
}

// DeleteBySource removes every record whose source matches path.
func (s *ChromemStore) DeleteBySource(ctx context.Context, path string) (int, error) {
	source := extractor.NormalizePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteSource(ctx, source)
}

func (s *ChromemStore) deleteSource(ctx context.Context, source string) (int, error) {
	before := s.collection.Count()
	if err := s.collection.Delete(ctx, map[string]string{"source": source}, nil); err != nil {
		return 0, fmt.Errorf("delete source %s: %w", source, err)
	}
	if err := s.ledger.deleteSource(ctx, source); err != nil {
		return 0, fmt.Errorf("delete ledger rows for %s: %w", source, err)
	}
	deleted := before - s.collection.Count()
	if deleted > 0 {
		s.logger.Info("deleted source", zap.String("source", source), zap.Int("records", deleted))
	}
	return deleted, nil
}

// Prune removes stale records of source left behind when a file shrinks
// and is indexed again.
func (s *ChromemStore) Prune(ctx context.Context, path string, keep []string) (int, error) {
	source := extractor.NormalizePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.ledger.idsForSource(ctx, source)
	if err != nil {
		return 0, err
	}

	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	var stale []string
	for _, id := range ids {
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	before := s.collection.Count()
	if err := s.collection.Delete(ctx, nil, nil, stale...); err != nil {
		return 0, fmt.Errorf("prune %s: %w", source, err)
	}
	if err := s.ledger.deleteIDs(ctx, stale); err != nil {
		return 0, fmt.Errorf("prune ledger rows for %s: %w", source, err)
	}
	return before - s.collection.Count(), nil
}

// SyncWithFilesystem removes records whose source file no longer exists.
// Where a source lives does not matter.
func (s *ChromemStore) SyncWithFilesystem(ctx context.Context) (*SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := s.ledger.sources(ctx)
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{TotalSources: len(sources)}
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isStale(source) {
			continue
		}
		stats.MissingSources++
		n, err := s.deleteSource(ctx, source)
		if err != nil {
			return nil, err
		}
		stats.Deleted += n
	}
	stats.Remaining = s.collection.Count()

	s.logger.Info("index synced",
		zap.Int("sources", stats.TotalSources),
		zap.Int("missing", stats.MissingSources),
		zap.Int("deleted", stats.Deleted))
	return stats, nil
}

func isStale(source string) bool {
	_, err := os.Stat(source)
	return errors.Is(err, os.ErrNotExist)
}

// Sources lists distinct sources in the index.
func (s *ChromemStore) Sources(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.sources(ctx)
}

// Stats summarizes the index.
func (s *ChromemStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ls, err := s.ledger.stats(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := s.ledger.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Collection:    s.name,
		Dir:           s.dir,
		TotalRecords:  s.collection.Count(),
		UniqueSources: ls.uniqueSources,
		Extensions:    ls.extensions,
		AvgTextLength: ls.avgTextLength,
		Dimensions:    dim,
	}, nil
}

// Clear drops and recreates the collection.
func (s *ChromemStore) Clear(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return false, fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, s.embedFunc)
	if err != nil {
		return false, fmt.Errorf("recreate collection: %w", err)
	}
	s.collection = col

	if err := s.ledger.clear(ctx); err != nil {
		return false, fmt.Errorf("clear ledger: %w", err)
	}
	s.logger.Info("index cleared", zap.String("collection", s.name))
	return true, nil
}

// Count returns the total number of records.
func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}
