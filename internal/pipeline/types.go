package pipeline

import (
	"time"
)

// State is a step in the upload lifecycle.
type State string

const (
	StateUploaded           State = "uploaded"
	StateStaged             State = "staged"
	StateAccepted           State = "accepted"
	StateRejected           State = "rejected"
	StateIndexed            State = "indexed"
	StateAcceptedNotIndexed State = "accepted_not_indexed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateIndexed, StateAcceptedNotIndexed, StateFailed:
		return true
	}
	return false
}

// NamespaceError marks an upload that never reached a blob namespace.
const NamespaceError = "error"

// NoContentMessage is the failure message for files that yield no text.
const NoContentMessage = "No content extracted from file"

// UploadResult is the outcome of HandleUpload.
type UploadResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Namespace   string `json:"final_namespace"`
	State       State  `json:"state"`
	StoredAs    string `json:"stored_as,omitempty"`
	ChunksAdded int    `json:"chunks_added"`
}

// ProcessResult is the outcome of ProcessSingleFile.
type ProcessResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
	Skipped     bool   `json:"skipped,omitempty"`

	Err error `json:"-"`
}

// FolderResult summarizes a ProcessFolder run.
type FolderResult struct {
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	ChunksAdded    int
	Duration       time.Duration
	Errors         []error
}

// ProgressFunc is called after each file of a folder run.
type ProgressFunc func(processed int, total int, currentFile string)
