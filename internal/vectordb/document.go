package vectordb

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"time"
)

var (
	// ErrShapeMismatch is returned when chunks and vectors differ in length.
	ErrShapeMismatch = errors.New("chunks and vectors have different lengths")
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimension the index was created with.
	ErrDimensionMismatch = errors.New("vector dimension does not match index")
)

// Record is the durable unit stored in the index: one per chunk.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata Metadata
}

// Metadata is stored alongside every record.
type Metadata struct {
	Source     string // normalized path of the originating file
	Filename   string
	Extension  string
	Segment    int
	Page       int
	Ordinal    int
	TextLength int
	IndexedAt  time.Time
}

// SearchResult is one hit from SimilaritySearch.
type SearchResult struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float32 // 1 - cosine similarity
}

// Similarity returns 1 - distance rounded to three decimals.
func (r SearchResult) Similarity() float64 {
	return math.Round((1-float64(r.Distance))*1000) / 1000
}

// SyncStats reports a SyncWithFilesystem pass.
type SyncStats struct {
	TotalSources   int `json:"total_sources_in_db"`
	MissingSources int `json:"missing_files"`
	Deleted        int `json:"embeddings_deleted"`
	Remaining      int `json:"remaining_documents"`
}

// Stats summarizes the index.
type Stats struct {
	Collection    string         `json:"collection"`
	Dir           string         `json:"dir,omitempty"`
	TotalRecords  int            `json:"total_records"`
	UniqueSources int            `json:"unique_sources"`
	Extensions    map[string]int `json:"extensions"`
	AvgTextLength float64        `json:"avg_text_length"`
	Dimensions    int            `json:"dimensions"`
}

const idPrefixRunes = 100

// RecordID derives a record's id from its source path, ordinal and the
// first 100 characters of its text. Re-indexing identical content at the
// same position yields the same id.
func RecordID(source string, ordinal int, text string) string {
	prefix := text
	n := 0
	for i := range text {
		if n == idPrefixRunes {
			prefix = text[:i]
			break
		}
		n++
	}
	sum := sha256.Sum256([]byte(source + "_" + strconv.Itoa(ordinal) + "_" + prefix))
	return hex.EncodeToString(sum[:16])
}

func metadataToMap(m Metadata) map[string]string {
	return map[string]string{
		"source":           m.Source,
		"source_filename":  m.Filename,
		"source_extension": m.Extension,
		"segment":          strconv.Itoa(m.Segment),
		"page":             strconv.Itoa(m.Page),
		"ordinal":          strconv.Itoa(m.Ordinal),
		"text_length":      strconv.Itoa(m.TextLength),
		"indexed_at":       m.IndexedAt.Format(time.RFC3339),
	}
}

func mapToMetadata(m map[string]string) Metadata {
	segment, _ := strconv.Atoi(m["segment"])
	page, _ := strconv.Atoi(m["page"])
	ordinal, _ := strconv.Atoi(m["ordinal"])
	textLength, _ := strconv.Atoi(m["text_length"])
	indexedAt, _ := time.Parse(time.RFC3339, m["indexed_at"])

	return Metadata{
		Source:     m["source"],
		Filename:   m["source_filename"],
		Extension:  m["source_extension"],
		Segment:    segment,
		Page:       page,
		Ordinal:    ordinal,
		TextLength: textLength,
		IndexedAt:  indexedAt,
	}
}
