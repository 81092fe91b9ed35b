package vectordb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/testutil"
)

const testDims = 64

func newTestStore(t *testing.T, dir string) *ChromemStore {
	t.Helper()
	ledgerDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { ledgerDB.Close() })

	store, err := NewChromemStore(Options{Dir: dir, Ledger: ledgerDB, BatchSize: 2})
	if err != nil {
		t.Fatalf("NewChromemStore() error: %v", err)
	}
	return store
}

func chunksFor(source string, texts ...string) []chunker.Chunk {
	out := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		out[i] = chunker.Chunk{
			Content:   text,
			Source:    source,
			Filename:  filepath.Base(source),
			Extension: strings.ToLower(filepath.Ext(source)),
			Ordinal:   i,
		}
	}
	return out
}

func embedAll(e *testutil.WordEmbedder, chunks []chunker.Chunk) [][]float32 {
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		vectors[i] = e.Vector(c.Content)
	}
	return vectors
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	chunks := chunksFor("/docs/geo.txt",
		"The capital of France is Paris.",
		"Bananas are rich in potassium.",
		"Rust and Go are systems languages.",
	)
	n, err := store.Add(ctx, chunks, embedAll(embedder, chunks))
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if n != 3 {
		t.Fatalf("Add() = %d, want 3", n)
	}
	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	results, err := store.SimilaritySearch(ctx, embedder.Vector("capital of France"), 2)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !strings.Contains(results[0].Text, "Paris") {
		t.Errorf("top result = %q, want the Paris passage", results[0].Text)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("results not sorted by distance: %v > %v", results[0].Distance, results[1].Distance)
	}
	if got := results[0].Metadata.Filename; got != "geo.txt" {
		t.Errorf("Filename = %q, want geo.txt", got)
	}
	if results[0].Metadata.IndexedAt.IsZero() {
		t.Error("IndexedAt not recorded")
	}
}

func TestChromemStore_ReAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	chunks := chunksFor("/docs/a.txt", "first passage", "second passage", "third passage")
	for i := 0; i < 2; i++ {
		if _, err := store.Add(ctx, chunks, embedAll(embedder, chunks)); err != nil {
			t.Fatalf("Add() pass %d error: %v", i, err)
		}
	}
	if store.Count() != 3 {
		t.Errorf("Count() after re-add = %d, want 3", store.Count())
	}
}

func TestChromemStore_ShapeMismatch(t *testing.T) {
	store := newTestStore(t, "")
	chunks := chunksFor("/docs/a.txt", "one", "two")

	_, err := store.Add(context.Background(), chunks, [][]float32{make([]float32, testDims)})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Add() error = %v, want ErrShapeMismatch", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0", store.Count())
	}
}

func TestChromemStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "")

	chunks := chunksFor("/docs/a.txt", "one")
	if _, err := store.Add(ctx, chunks, [][]float32{testutil.NewWordEmbedder(8).Vector("one")}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	other := chunksFor("/docs/b.txt", "two")
	_, err := store.Add(ctx, other, [][]float32{testutil.NewWordEmbedder(16).Vector("two")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add() error = %v, want ErrDimensionMismatch", err)
	}

	_, err = store.SimilaritySearch(ctx, make([]float32, 16), 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("SimilaritySearch() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestChromemStore_SearchEmpty(t *testing.T) {
	store := newTestStore(t, "")

	results, err := store.SimilaritySearch(context.Background(), make([]float32, testDims), 4)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil results, got %#v", results)
	}
}

func TestChromemStore_SearchClampsK(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	chunks := chunksFor("/docs/a.txt", "alpha", "beta")
	if _, err := store.Add(ctx, chunks, embedAll(embedder, chunks)); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	results, err := store.SimilaritySearch(ctx, embedder.Vector("alpha"), 10)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestChromemStore_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	a := chunksFor("/docs/a.txt", "a one", "a two", "a three")
	b := chunksFor("/docs/b.txt", "b one", "b two")
	for _, c := range [][]chunker.Chunk{a, b} {
		if _, err := store.Add(ctx, c, embedAll(embedder, c)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	deleted, err := store.DeleteBySource(ctx, "/docs/a.txt")
	if err != nil {
		t.Fatalf("DeleteBySource() error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}

	deleted, err = store.DeleteBySource(ctx, "/docs/missing.txt")
	if err != nil {
		t.Fatalf("DeleteBySource() on unknown source error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}

	sources, err := store.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() error: %v", err)
	}
	if len(sources) != 1 || sources[0] != "/docs/b.txt" {
		t.Errorf("Sources() = %v, want [/docs/b.txt]", sources)
	}
}

func TestChromemStore_Prune(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	long := chunksFor("/docs/a.txt", "one", "two", "three")
	if _, err := store.Add(ctx, long, embedAll(embedder, long)); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	short := chunksFor("/docs/a.txt", "one")
	if _, err := store.Add(ctx, short, embedAll(embedder, short)); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	keep := []string{RecordID("/docs/a.txt", 0, "one")}

	pruned, err := store.Prune(ctx, "/docs/a.txt", keep)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestChromemStore_SyncWithFilesystem(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.txt")
	gone := filepath.Join(dir, "gone.txt")
	for _, p := range []string{kept, gone} {
		if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
		c := chunksFor(p, "content of "+filepath.Base(p), "more of "+filepath.Base(p))
		if _, err := store.Add(ctx, c, embedAll(embedder, c)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	stats, err := store.SyncWithFilesystem(ctx)
	if err != nil {
		t.Fatalf("SyncWithFilesystem() error: %v", err)
	}
	want := SyncStats{TotalSources: 2, MissingSources: 1, Deleted: 2, Remaining: 2}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	// A second pass has nothing to do.
	stats, err = store.SyncWithFilesystem(ctx)
	if err != nil {
		t.Fatalf("SyncWithFilesystem() error: %v", err)
	}
	if stats.Deleted != 0 || stats.Remaining != 2 {
		t.Errorf("second sync = %+v", *stats)
	}
}

func TestChromemStore_SyncKeepsExistingFilesAnywhere(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	active := t.TempDir()
	other := t.TempDir()
	inside := filepath.Join(active, "in.txt")
	outside := filepath.Join(other, "out.txt")
	for _, p := range []string{inside, outside} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		c := chunksFor(p, "text "+filepath.Base(p))
		if _, err := store.Add(ctx, c, embedAll(embedder, c)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	stats, err := store.SyncWithFilesystem(ctx)
	if err != nil {
		t.Fatalf("SyncWithFilesystem() error: %v", err)
	}
	if stats.MissingSources != 0 || stats.Deleted != 0 || stats.Remaining != 2 {
		t.Errorf("stats = %+v, want both existing sources kept", *stats)
	}

	if err := os.Remove(outside); err != nil {
		t.Fatal(err)
	}
	stats, err = store.SyncWithFilesystem(ctx)
	if err != nil {
		t.Fatalf("SyncWithFilesystem() error: %v", err)
	}
	if stats.MissingSources != 1 || stats.Remaining != 1 {
		t.Errorf("stats = %+v, want only the removed file dropped", *stats)
	}
}

func TestChromemStore_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	store := newTestStore(t, "")

	a := chunksFor("/docs/a.txt", "abcd", "ef")
	b := chunksFor("/docs/b.pdf", "ghijkl")
	for _, c := range [][]chunker.Chunk{a, b} {
		if _, err := store.Add(ctx, c, embedAll(embedder, c)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalRecords != 3 || stats.UniqueSources != 2 {
		t.Errorf("stats = %+v", *stats)
	}
	if stats.Extensions[".txt"] != 2 || stats.Extensions[".pdf"] != 1 {
		t.Errorf("extensions = %v", stats.Extensions)
	}
	if stats.AvgTextLength != 4 {
		t.Errorf("AvgTextLength = %v, want 4", stats.AvgTextLength)
	}
	if stats.Dimensions != testDims {
		t.Errorf("Dimensions = %d, want %d", stats.Dimensions, testDims)
	}

	ok, err := store.Clear(ctx)
	if err != nil || !ok {
		t.Fatalf("Clear() = %v, %v", ok, err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() after Clear = %d", store.Count())
	}
	sources, _ := store.Sources(ctx)
	if len(sources) != 0 {
		t.Errorf("Sources() after Clear = %v", sources)
	}

	// A cleared index accepts a new dimension.
	c := chunksFor("/docs/c.txt", "fresh")
	if _, err := store.Add(ctx, c, [][]float32{testutil.NewWordEmbedder(8).Vector("fresh")}); err != nil {
		t.Errorf("Add() after Clear error: %v", err)
	}
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewWordEmbedder(testDims)
	dir := t.TempDir()

	ledgerDB, err := db.Open(filepath.Join(dir, "docqa.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer ledgerDB.Close()

	opts := Options{Dir: filepath.Join(dir, "index"), Ledger: ledgerDB}
	store, err := NewChromemStore(opts)
	if err != nil {
		t.Fatalf("NewChromemStore() error: %v", err)
	}
	chunks := chunksFor("/docs/a.txt", "persisted passage")
	if _, err := store.Add(ctx, chunks, embedAll(embedder, chunks)); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	reopened, err := NewChromemStore(opts)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if reopened.Count() != 1 {
		t.Errorf("Count() after reopen = %d, want 1", reopened.Count())
	}
}

func TestRecordID(t *testing.T) {
	a := RecordID("/docs/a.txt", 0, "hello")
	if a != RecordID("/docs/a.txt", 0, "hello") {
		t.Error("RecordID not deterministic")
	}
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a == RecordID("/docs/a.txt", 1, "hello") {
		t.Error("ordinal should change the id")
	}
	long := strings.Repeat("x", 100)
	if RecordID("/s", 0, long+"tail one") != RecordID("/s", 0, long+"tail two") {
		t.Error("only the first 100 characters should contribute")
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("FormatResults(nil) = %q", got)
	}
	out := FormatResults([]SearchResult{{
		Text:     "Paris",
		Distance: 0.25,
		Metadata: Metadata{Source: "/docs/geo.pdf", Page: 3},
	}})
	for _, want := range []string{"similarity: 0.750", "/docs/geo.pdf (page 3)", "Paris"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
