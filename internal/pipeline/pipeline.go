// Package pipeline moves uploaded documents through staging, duplicate
// detection and indexing: extract, chunk, embed, store.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/blob"
	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/extractor"
	"github.com/ziadkadry99/docqa/internal/vectordb"
	"github.com/ziadkadry99/docqa/internal/walker"
)

const duplicateMarker = "_duplicate"

// Options wires a Pipeline to its collaborators.
type Options struct {
	Extractor   *extractor.Extractor
	Chunker     *chunker.Chunker
	Embeddings  *embeddings.Service
	Store       vectordb.VectorStore
	Blobs       blob.Store
	DB          *db.DB
	Logger      *zap.Logger
	Concurrency int
	Include     []string
	Exclude     []string
}

// Pipeline orchestrates the upload workflow and the indexing steps.
type Pipeline struct {
	extractor  *extractor.Extractor
	chunker    *chunker.Chunker
	embeddings *embeddings.Service
	store      vectordb.VectorStore
	blobs      blob.Store
	events     *EventLog
	state      *fileState
	logger     *zap.Logger

	concurrency int
	include     []string
	exclude     []string
}

// New creates a Pipeline. Blobs and DB are optional: without blobs only
// ProcessSingleFile and ProcessFolder are usable, and without a DB nothing
// is recorded.
func New(opts Options) (*Pipeline, error) {
	if opts.Chunker == nil || opts.Embeddings == nil || opts.Store == nil {
		return nil, errors.New("pipeline: chunker, embeddings and store are required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extractor.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}

	p := &Pipeline{
		extractor:   opts.Extractor,
		chunker:     opts.Chunker,
		embeddings:  opts.Embeddings,
		store:       opts.Store,
		blobs:       opts.Blobs,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
		include:     opts.Include,
		exclude:     opts.Exclude,
	}
	if opts.DB != nil {
		p.events = NewEventLog(opts.DB)
		p.state = &fileState{db: opts.DB}
	}
	return p, nil
}

// Events returns the upload ledger, or nil when no DB is configured.
func (p *Pipeline) Events() *EventLog {
	return p.events
}

// ProcessSingleFile indexes the file at path.
func (p *Pipeline) ProcessSingleFile(ctx context.Context, path string) ProcessResult {
	return p.processFile(ctx, path, extractor.NormalizePath(path))
}

// processFile extracts from readPath and indexes the records under source.
// The two differ for uploads, which are read from a local staging file but
// cited by their accepted blob path.
func (p *Pipeline) processFile(ctx context.Context, readPath, source string) ProcessResult {
	log := p.logger.With(zap.String("source", source))

	fail := func(err error) ProcessResult {
		log.Error("indexing failed", zap.Error(err))
		return ProcessResult{Message: fmt.Sprintf("Error processing file: %v", err), Err: err}
	}

	log.Info("step 1/4: extracting text")
	segments, err := p.extractor.Extract(readPath)
	if err != nil {
		return fail(err)
	}
	if len(segments) == 0 {
		return ProcessResult{Message: NoContentMessage}
	}
	filename := filepath.Base(source)
	for i := range segments {
		segments[i].Source = source
		segments[i].Filename = filename
	}

	log.Info("step 2/4: chunking", zap.Int("segments", len(segments)))
	chunks := p.chunker.Chunk(segments)
	if len(chunks) == 0 {
		return ProcessResult{Message: NoContentMessage}
	}

	log.Info("step 3/4: embedding", zap.Int("chunks", len(chunks)))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embeddings.EmbedMany(ctx, texts)
	if err != nil {
		return fail(err)
	}

	log.Info("step 4/4: storing")
	added, err := p.store.Add(ctx, chunks, vectors)
	if err != nil {
		return fail(err)
	}

	keep := make([]string, len(chunks))
	for i, c := range chunks {
		keep[i] = vectordb.RecordID(source, c.Ordinal, c.Content)
	}
	if pruned, err := p.store.Prune(ctx, source, keep); err != nil {
		log.Warn("pruning stale records failed", zap.Error(err))
	} else if pruned > 0 {
		log.Info("pruned stale records", zap.Int("records", pruned))
	}

	if p.state != nil {
		if hash, err := walker.HashFile(readPath); err == nil {
			if err := p.state.Save(ctx, source, hash, added); err != nil {
				log.Warn("saving file state failed", zap.Error(err))
			}
		}
	}

	total := p.store.Count()
	log.Info("file indexed", zap.Int("chunks", added), zap.Int("total", total))
	return ProcessResult{
		Success:     true,
		Message:     fmt.Sprintf("Successfully processed! Added %d chunks. Total in DB: %d", added, total),
		ChunksAdded: added,
	}
}

// HandleUpload runs the full upload workflow for one file. It never panics
// and always returns a result; the outcome is appended to the upload ledger.
func (p *Pipeline) HandleUpload(ctx context.Context, filename string, content io.Reader) (res UploadResult) {
	hash := sha256.New()
	name := filepath.Base(strings.TrimSpace(filename))

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("upload pipeline panic", zap.String("file", name), zap.Any("panic", r))
			res = UploadResult{
				Message:   fmt.Sprintf("Error in pipeline: %v", r),
				Namespace: NamespaceError,
				State:     StateFailed,
			}
		}
		p.record(ctx, name, res, hex.EncodeToString(hash.Sum(nil)))
	}()

	return p.handleUpload(ctx, name, io.TeeReader(content, hash))
}

func (p *Pipeline) handleUpload(ctx context.Context, name string, content io.Reader) UploadResult {
	log := p.logger.With(zap.String("file", name))
	failed := func(err error) UploadResult {
		log.Error("upload failed", zap.Error(err))
		return UploadResult{
			Message:   fmt.Sprintf("Error in pipeline: %v", err),
			Namespace: NamespaceError,
			State:     StateFailed,
		}
	}

	if name == "" || name == "." || name == string(filepath.Separator) {
		return UploadResult{Message: "Invalid filename", Namespace: NamespaceError, State: StateFailed}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !extractor.IsSupported(name) {
		return UploadResult{
			Message:   fmt.Sprintf("Unsupported file type %q: only .pdf and .txt files are accepted", ext),
			Namespace: NamespaceError,
			State:     StateFailed,
		}
	}
	if p.blobs == nil {
		return failed(errors.New("no blob store configured"))
	}

	log.Info("upload received")

	// Stage to a local file (for extraction) and to rawdata.
	tmp, err := os.CreateTemp("", "docqa-upload-*"+ext)
	if err != nil {
		return failed(fmt.Errorf("create staging file: %w", err))
	}
	tmpPath := tmp.Name()
	// Concurrent uploads of one name each get their own rawdata blob.
	rawName := uuid.NewString() + "-" + name
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("removing staging file failed", zap.Error(err))
		}
		// Use a fresh context so cleanup runs even when ctx is done.
		if err := p.blobs.Delete(context.WithoutCancel(ctx), blob.Raw, rawName); err != nil {
			log.Warn("removing rawdata blob failed", zap.Error(err))
		}
	}()

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return failed(fmt.Errorf("write staging file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return failed(fmt.Errorf("close staging file: %w", err))
	}

	staged, err := os.Open(tmpPath)
	if err != nil {
		return failed(err)
	}
	err = p.blobs.Put(ctx, blob.Raw, rawName, staged)
	staged.Close()
	if err != nil {
		return failed(fmt.Errorf("stage to %s: %w", blob.Raw, err))
	}
	log.Debug("staged", zap.String("state", string(StateStaged)))

	dup, err := p.isDuplicate(ctx, name)
	if err != nil {
		return failed(err)
	}

	if dup {
		rejectedName := strings.TrimSuffix(name, filepath.Ext(name)) + duplicateMarker + filepath.Ext(name)
		if err := p.blobs.Copy(ctx, blob.Raw, blob.Rejected, rawName, rejectedName); err != nil {
			return failed(fmt.Errorf("move to %s: %w", blob.Rejected, err))
		}
		log.Info("duplicate rejected", zap.String("stored_as", rejectedName))
		return UploadResult{
			Message:   fmt.Sprintf("Duplicate file detected! Moved to rejected as '%s'", rejectedName),
			Namespace: string(blob.Rejected),
			State:     StateRejected,
			StoredAs:  rejectedName,
		}
	}

	if err := p.blobs.Copy(ctx, blob.Raw, blob.Accepted, rawName, name); err != nil {
		return failed(fmt.Errorf("move to %s: %w", blob.Accepted, err))
	}
	log.Info("accepted", zap.String("state", string(StateAccepted)))

	pr := p.processFile(ctx, tmpPath, extractor.NormalizePath(p.blobs.Path(blob.Accepted, name)))
	if !pr.Success {
		return UploadResult{
			Message:   fmt.Sprintf("File kept in accepted but indexing failed: %s", pr.Message),
			Namespace: string(blob.Accepted),
			State:     StateAcceptedNotIndexed,
			StoredAs:  name,
		}
	}
	return UploadResult{
		Success:     true,
		Message:     pr.Message,
		Namespace:   string(blob.Accepted),
		State:       StateIndexed,
		StoredAs:    name,
		ChunksAdded: pr.ChunksAdded,
	}
}

// isDuplicate reports whether an accepted blob has the same name, ignoring
// case and any duplicate marker.
func (p *Pipeline) isDuplicate(ctx context.Context, name string) (bool, error) {
	objects, err := p.blobs.List(ctx, blob.Accepted)
	if err != nil {
		return false, fmt.Errorf("list %s: %w", blob.Accepted, err)
	}
	base := strings.ReplaceAll(name, duplicateMarker, "")
	for _, o := range objects {
		if strings.EqualFold(base, strings.ReplaceAll(o.Name, duplicateMarker, "")) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) record(ctx context.Context, name string, res UploadResult, contentHash string) {
	if p.events == nil {
		return
	}
	ev := UploadEvent{
		Filename:      name,
		StoredAs:      res.StoredAs,
		Namespace:     res.Namespace,
		State:         res.State,
		Success:       res.Success,
		Message:       res.Message,
		Chunks:        res.ChunksAdded,
		ContentSHA256: contentHash,
	}
	if err := p.events.Record(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Warn("recording upload event failed", zap.Error(err))
	}
}

// RemoveDocument deletes an accepted document and its records.
func (p *Pipeline) RemoveDocument(ctx context.Context, name string) (int, error) {
	if p.blobs == nil {
		return 0, errors.New("no blob store configured")
	}
	ok, err := p.blobs.Exists(ctx, blob.Accepted, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", blob.ErrNotFound, name)
	}

	source := p.blobs.Path(blob.Accepted, name)
	deleted, err := p.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if err := p.blobs.Delete(ctx, blob.Accepted, name); err != nil {
		return deleted, err
	}
	if p.state != nil {
		if err := p.state.Forget(ctx, extractor.NormalizePath(source)); err != nil {
			p.logger.Warn("forgetting file state failed", zap.Error(err))
		}
	}
	return deleted, nil
}

// Document is an accepted file and whether the index holds its records.
type Document struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
	Indexed bool      `json:"indexed"`
}

// Documents lists the accepted namespace.
func (p *Pipeline) Documents(ctx context.Context) ([]Document, error) {
	if p.blobs == nil {
		return nil, errors.New("no blob store configured")
	}
	objects, err := p.blobs.List(ctx, blob.Accepted)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", blob.Accepted, err)
	}
	sources, err := p.store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed sources: %w", err)
	}
	indexed := make(map[string]bool, len(sources))
	for _, s := range sources {
		indexed[s] = true
	}

	docs := make([]Document, 0, len(objects))
	for _, o := range objects {
		source := extractor.NormalizePath(p.blobs.Path(blob.Accepted, o.Name))
		docs = append(docs, Document{
			Name:    o.Name,
			Size:    o.Size,
			ModTime: o.ModTime,
			Indexed: indexed[source],
		})
	}
	return docs, nil
}
