// Package blob stores uploaded documents in three namespaces: rawdata for
// staging, accepted for indexed documents and rejected for duplicates.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// Namespace is a top-level container within the blob store.
type Namespace string

const (
	Raw      Namespace = "rawdata"
	Accepted Namespace = "accepted"
	Rejected Namespace = "rejected"
)

// Namespaces lists every namespace the store manages.
var Namespaces = []Namespace{Raw, Accepted, Rejected}

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidName = errors.New("invalid blob name")
)

// Object describes a stored blob.
type Object struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// Store is a namespaced object store.
type Store interface {
	Put(ctx context.Context, ns Namespace, name string, r io.Reader) error
	Get(ctx context.Context, ns Namespace, name string) (io.ReadCloser, error)
	List(ctx context.Context, ns Namespace) ([]Object, error)
	Copy(ctx context.Context, src, dst Namespace, name, newName string) error
	Delete(ctx context.Context, ns Namespace, name string) error
	Exists(ctx context.Context, ns Namespace, name string) (bool, error)

	// Path returns the location of a blob as seen by the indexer. Records
	// of accepted documents carry this path as their source.
	Path(ns Namespace, name string) string
}
