// Package chunker splits extracted text segments into overlapping passages
// using a recursive separator cascade.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ziadkadry99/docqa/internal/extractor"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// DefaultSeparators run from coarsest to finest: paragraph, line, sentence,
// clause, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

var ErrInvalidParameters = errors.New("invalid chunking parameters")

// Chunk is a bounded slice of a segment's content.
type Chunk struct {
	Content   string
	Source    string
	Filename  string
	Extension string
	Segment   int // index of the segment within its file
	Page      int
	Ordinal   int // position among all chunks of the source
	Start     int // byte offset of Content within the segment
	Overlap   int // bytes shared with the previous chunk of the same segment
}

type params struct {
	size       int
	overlap    int
	separators []string
}

func (p params) validate() error {
	if p.size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParameters, p.size)
	}
	if p.overlap < 0 || p.overlap >= p.size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidParameters, p.size, p.overlap)
	}
	if len(p.separators) == 0 {
		return fmt.Errorf("%w: no separators", ErrInvalidParameters)
	}
	return nil
}

// Option configures a Chunker.
type Option func(*params)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *params) { p.size = size }
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *params) { p.overlap = overlap }
}

// WithSeparators replaces the separator cascade.
func WithSeparators(seps []string) Option {
	return func(p *params) { p.separators = append([]string(nil), seps...) }
}

// Chunker is safe for concurrent use. Reconfigure only affects calls that
// start after it returns.
type Chunker struct {
	mu sync.RWMutex
	p  params
}

// New creates a Chunker with the given options applied over the defaults.
func New(opts ...Option) (*Chunker, error) {
	p := params{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Chunker{p: p}, nil
}

// Reconfigure changes size and overlap for subsequent Chunk calls.
func (c *Chunker) Reconfigure(size, overlap int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.p
	next.size = size
	next.overlap = overlap
	if err := next.validate(); err != nil {
		return err
	}
	c.p = next
	return nil
}

// Params returns the current chunk size and overlap.
func (c *Chunker) Params() (size, overlap int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p.size, c.p.overlap
}

// Chunk splits segments into chunks. Ordinals count per source across all
// of that source's segments. Blank segments produce no chunks. A run of
// whitespace that would form a chunk on its own is folded into the chunk
// before it (after it at the start of a segment), so that chunk may exceed
// the size by that whitespace and the chunks still cover the segment.
func (c *Chunker) Chunk(segments []extractor.Segment) []Chunk {
	c.mu.RLock()
	p := c.p
	c.mu.RUnlock()

	ordinals := make(map[string]int)
	var out []Chunk

	for _, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			continue
		}

		prevEnd := -1
		for _, sp := range foldBlank(seg.Content, splitText(p, seg.Content, 0, p.separators)) {
			end := sp.start + len(sp.text)
			overlap := 0
			if prevEnd > sp.start {
				overlap = min(prevEnd-sp.start, len(sp.text))
			}
			prevEnd = max(prevEnd, end)

			n := ordinals[seg.Source]
			ordinals[seg.Source]++

			out = append(out, Chunk{
				Content:   sp.text,
				Source:    seg.Source,
				Filename:  seg.Filename,
				Extension: seg.Extension,
				Segment:   seg.Index,
				Page:      seg.Page,
				Ordinal:   n,
				Start:     sp.start,
				Overlap:   overlap,
			})
		}
	}
	return out
}

// SplitText splits a single string with the current parameters.
func (c *Chunker) SplitText(text string) []string {
	c.mu.RLock()
	p := c.p
	c.mu.RUnlock()

	spans := splitText(p, text, 0, p.separators)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, sp.text)
	}
	return out
}

// foldBlank merges whitespace-only spans into the span before them, or the
// first non-blank span when they lead the text.
func foldBlank(text string, spans []span) []span {
	out := make([]span, 0, len(spans))
	pending := -1
	for _, sp := range spans {
		end := sp.start + len(sp.text)
		if strings.TrimSpace(sp.text) == "" {
			if len(out) == 0 {
				if pending < 0 {
					pending = sp.start
				}
				continue
			}
			last := &out[len(out)-1]
			if end > last.start+len(last.text) {
				last.text = text[last.start:end]
			}
			continue
		}
		if pending >= 0 {
			sp = span{text: text[pending:end], start: pending}
			pending = -1
		}
		out = append(out, sp)
	}
	return out
}

// span is a contiguous piece of a segment.
type span struct {
	text  string
	start int
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// splitText picks the coarsest separator present in text, splits on it and
// recurses into any piece that is still too long.
func splitText(p params, text string, base int, seps []string) []span {
	sep := seps[len(seps)-1]
	var finer []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = seps[i+1:]
			break
		}
	}

	var out, good []span
	for _, piece := range splitKeep(text, sep, base) {
		if runeLen(piece.text) < p.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, merge(p, good)...)
			good = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, splitText(p, piece.text, piece.start, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, merge(p, good)...)
	}
	return out
}

// splitKeep splits text after every occurrence of sep, keeping the
// separator at the end of the piece it terminates. An empty sep splits
// into runes.
func splitKeep(text, sep string, base int) []span {
	var out []span
	if sep == "" {
		for i, r := range text {
			out = append(out, span{text: string(r), start: base + i})
		}
		return out
	}

	start := 0
	for {
		i := strings.Index(text[start:], sep)
		if i < 0 {
			break
		}
		end := start + i + len(sep)
		out = append(out, span{text: text[start:end], start: base + start})
		start = end
	}
	if start < len(text) {
		out = append(out, span{text: text[start:], start: base + start})
	}
	return out
}

// merge packs consecutive pieces into chunks of at most p.size characters.
// After emitting a chunk it keeps trailing pieces totalling at most
// p.overlap characters as the start of the next one.
func merge(p params, pieces []span) []span {
	var docs, current []span
	total := 0

	for _, piece := range pieces {
		l := runeLen(piece.text)
		if total+l > p.size && len(current) > 0 {
			docs = append(docs, join(current))
			for total > p.overlap || (total+l > p.size && total > 0) {
				total -= runeLen(current[0].text)
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}
	if len(current) > 0 {
		docs = append(docs, join(current))
	}
	return docs
}

// join concatenates adjacent pieces.
func join(pieces []span) span {
	var b strings.Builder
	for _, piece := range pieces {
		b.WriteString(piece.text)
	}
	return span{text: b.String(), start: pieces[0].start}
}
