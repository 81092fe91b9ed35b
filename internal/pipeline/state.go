package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ziadkadry99/docqa/internal/db"
)

// fileState tracks the content hash each source was last indexed with, so
// folder runs can skip files that have not changed.
type fileState struct {
	db *db.DB
}

// IsFileChanged returns true if the file's content hash differs from the
// stored hash, or the file was never indexed.
func (s *fileState) IsFileChanged(ctx context.Context, source, contentHash string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_sha256 FROM indexed_files WHERE source = ?`, source).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query file state: %w", err)
	}
	return stored != contentHash, nil
}

func (s *fileState) Save(ctx context.Context, source, contentHash string, chunks int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_files (source, content_sha256, chunks, indexed_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(source) DO UPDATE SET
			content_sha256 = excluded.content_sha256,
			chunks = excluded.chunks,
			indexed_at = excluded.indexed_at`,
		source, contentHash, chunks)
	if err != nil {
		return fmt.Errorf("save file state: %w", err)
	}
	return nil
}

func (s *fileState) Forget(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE source = ?`, source)
	return err
}
