package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/extractor"
	"github.com/ziadkadry99/docqa/internal/walker"
)

// maxConsecutiveFailures trips the circuit breaker for a folder run.
const maxConsecutiveFailures = 5

// FolderOptions configures ProcessFolder.
type FolderOptions struct {
	// Force re-indexes files whose content hash has not changed.
	Force    bool
	Progress ProgressFunc
}

// ProcessFolder indexes every supported file under dir with bounded
// parallelism. Unchanged files are skipped unless opts.Force is set.
func (p *Pipeline) ProcessFolder(ctx context.Context, dir string, opts FolderOptions) (*FolderResult, error) {
	start := time.Now()

	files, err := walker.Walk(walker.WalkerConfig{
		RootDir:    dir,
		Extensions: extractor.SupportedExtensions(),
		Include:    p.include,
		Exclude:    p.exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	result := &FolderResult{}
	total := len(files)
	if total == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	// Circuit breaker: cancel remaining work if the embedding service keeps failing.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var tripped atomic.Bool
	var consecutive atomic.Int64

	sem := make(chan struct{}, p.concurrency)
	var mu sync.Mutex
	var processed atomic.Int64

	report := func(file string) {
		n := processed.Add(1)
		if opts.Progress != nil {
			opts.Progress(int(n), total, file)
		}
	}
	addErr := func(err error) {
		mu.Lock()
		result.Errors = append(result.Errors, err)
		result.FilesFailed++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for _, file := range files {
		if tripped.Load() {
			addErr(fmt.Errorf("index %s: skipped (embedding service unavailable)", file.RelPath))
			report(file.RelPath)
			continue
		}

		select {
		case <-ctx.Done():
			addErr(fmt.Errorf("index %s: %w", file.RelPath, ctx.Err()))
			report(file.RelPath)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(f walker.FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			defer report(f.RelPath)

			source := extractor.NormalizePath(f.Path)
			if !opts.Force && p.state != nil {
				changed, err := p.state.IsFileChanged(ctx, source, f.ContentHash)
				if err == nil && !changed {
					mu.Lock()
					result.FilesSkipped++
					mu.Unlock()
					return
				}
			}

			pr := p.processFile(ctx, f.Path, source)
			if !pr.Success {
				addErr(fmt.Errorf("index %s: %s", f.RelPath, pr.Message))
				if pr.Err != nil && isServiceFailure(pr.Err) {
					if consecutive.Add(1) >= maxConsecutiveFailures && !tripped.Swap(true) {
						p.logger.Error("circuit breaker tripped", zap.Error(pr.Err))
						cancel()
					}
				}
				return
			}
			consecutive.Store(0)

			mu.Lock()
			result.FilesProcessed++
			result.ChunksAdded += pr.ChunksAdded
			mu.Unlock()
		}(file)
	}

	wg.Wait()
	result.Duration = time.Since(start)

	p.logger.Info("folder indexed",
		zap.String("dir", dir),
		zap.Int("processed", result.FilesProcessed),
		zap.Int("skipped", result.FilesSkipped),
		zap.Int("failed", result.FilesFailed),
		zap.Int("chunks", result.ChunksAdded),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// isServiceFailure reports whether err came from the embedding service
// rather than from a single bad file.
func isServiceFailure(err error) bool {
	if errors.Is(err, embeddings.ErrEmbeddingService) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")
}
