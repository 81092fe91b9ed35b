// Package extractor turns PDF and plain-text files into ordered text
// segments: one per PDF page, or one for a whole text file.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/walker"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNotFound          = errors.New("file not found")
	ErrInvalidEncoding   = errors.New("file is not valid UTF-8")
)

// Segment is one logical unit of extracted text.
type Segment struct {
	Content   string
	Source    string // normalized absolute path
	Filename  string
	Extension string // lower-cased, with dot
	Index     int    // position within the file
	Page      int    // 1-based page number, 0 for text files
}

// SupportedExtensions lists the extensions Extract accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt"}
}

// IsSupported reports whether name has a supported extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions() {
		if ext == s {
			return true
		}
	}
	return false
}

// NormalizePath cleans and absolutizes a path so records of the same file
// always carry the same source.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Extractor reads supported files into segments.
type Extractor struct {
	pdf     PageReader
	logger  *zap.Logger
	include []string
	exclude []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPageReader replaces the PDF backend.
func WithPageReader(r PageReader) Option {
	return func(e *Extractor) { e.pdf = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithFilters sets the include/exclude globs used by ExtractFolder.
func WithFilters(include, exclude []string) Option {
	return func(e *Extractor) {
		e.include = include
		e.exclude = exclude
	}
}

// New creates an Extractor backed by the pure-Go PDF reader.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		pdf:    PDFReader{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads a single file.
func (e *Extractor) Extract(path string) ([]Segment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}

	source := NormalizePath(path)
	filename := filepath.Base(source)
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt":
		return e.extractText(source, filename)
	case ".pdf":
		return e.extractPDF(source, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func (e *Extractor) extractText(source, filename string) ([]Segment, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, filename)
	}
	// Drop a UTF-8 byte order mark.
	content := strings.TrimPrefix(string(data), "\ufeff")

	return []Segment{{
		Content:   content,
		Source:    source,
		Filename:  filename,
		Extension: ".txt",
	}}, nil
}

func (e *Extractor) extractPDF(source, filename string) ([]Segment, error) {
	pages, err := e.pdf.ReadPages(source)
	if err != nil {
		return nil, fmt.Errorf("reading pdf %s: %w", filename, err)
	}

	segments := make([]Segment, 0, len(pages))
	for i, text := range pages {
		segments = append(segments, Segment{
			Content:   text,
			Source:    source,
			Filename:  filename,
			Extension: ".pdf",
			Index:     i,
			Page:      i + 1,
		})
	}
	e.logger.Debug("extracted pdf", zap.String("file", filename), zap.Int("pages", len(pages)))
	return segments, nil
}

// FileError records a file that could not be extracted.
type FileError struct {
	Path string
	Err  error
}

// FolderResult is the outcome of ExtractFolder.
type FolderResult struct {
	Segments []Segment
	Files    int
	Failures []FileError
}

// ExtractFolder extracts every supported file under dir. A file that fails
// is logged and recorded in Failures; it does not abort the batch.
func (e *Extractor) ExtractFolder(ctx context.Context, dir string) (*FolderResult, error) {
	files, err := walker.Walk(walker.WalkerConfig{
		RootDir:    dir,
		Extensions: SupportedExtensions(),
		Include:    e.include,
		Exclude:    e.exclude,
	})
	if err != nil {
		return nil, err
	}

	result := &FolderResult{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		segments, err := e.Extract(f.Path)
		if err != nil {
			e.logger.Warn("skipping file", zap.String("file", f.RelPath), zap.Error(err))
			result.Failures = append(result.Failures, FileError{Path: f.Path, Err: err})
			continue
		}
		result.Files++
		result.Segments = append(result.Segments, segments...)
	}

	e.logger.Info("extracted folder",
		zap.String("dir", dir),
		zap.Int("files", result.Files),
		zap.Int("segments", len(result.Segments)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}
