package vectordb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/ziadkadry99/docqa/internal/db"
)

// ledger mirrors record metadata into SQLite so sources can be enumerated
// and counted without scanning the vector collection.
type ledger struct {
	db *db.DB
}

func (l *ledger) upsert(ctx context.Context, records []Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_chunks (id, source, filename, extension, segment, ordinal, text_length, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			filename = excluded.filename,
			extension = excluded.extension,
			segment = excluded.segment,
			ordinal = excluded.ordinal,
			text_length = excluded.text_length,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("prepare ledger upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx, r.ID, m.Source, m.Filename, m.Extension,
			m.Segment, m.Ordinal, m.TextLength, m.IndexedAt); err != nil {
			return fmt.Errorf("ledger upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (l *ledger) idsForSource(ctx context.Context, source string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id FROM index_chunks WHERE source = ? ORDER BY ordinal`, source)
	if err != nil {
		return nil, fmt.Errorf("query ledger ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *ledger) deleteSource(ctx context.Context, source string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM index_chunks WHERE source = ?`, source); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE source = ?`, source)
	return err
}

func (l *ledger) deleteIDs(ctx context.Context, ids []string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_chunks WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (l *ledger) sources(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT source FROM index_chunks ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type ledgerStats struct {
	uniqueSources int
	avgTextLength float64
	extensions    map[string]int
}

func (l *ledger) stats(ctx context.Context) (*ledgerStats, error) {
	st := &ledgerStats{extensions: make(map[string]int)}

	var avg sql.NullFloat64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT source), AVG(text_length) FROM index_chunks`).Scan(&st.uniqueSources, &avg)
	if err != nil {
		return nil, fmt.Errorf("query ledger stats: %w", err)
	}
	st.avgTextLength = avg.Float64

	rows, err := l.db.QueryContext(ctx, `SELECT extension, COUNT(*) FROM index_chunks GROUP BY extension`)
	if err != nil {
		return nil, fmt.Errorf("query extension stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ext string
		var n int
		if err := rows.Scan(&ext, &n); err != nil {
			return nil, err
		}
		st.extensions[ext] = n
	}
	return st, rows.Err()
}

func (l *ledger) dimensions(ctx context.Context) (int, error) {
	var v string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimensions'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query index dimensions: %w", err)
	}
	return strconv.Atoi(v)
}

// pinDimensions records dim the first time and reports the pinned value.
func (l *ledger) pinDimensions(ctx context.Context, dim int) (int, error) {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES ('dimensions', ?) ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(dim))
	if err != nil {
		return 0, fmt.Errorf("pin index dimensions: %w", err)
	}
	return l.dimensions(ctx)
}

func (l *ledger) clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM index_chunks`); err != nil {
		return err
	}
	// Folder runs skip files by hash, so hashes go with their records.
	if _, err := l.db.ExecContext(ctx, `DELETE FROM indexed_files`); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `DELETE FROM index_meta WHERE key = 'dimensions'`)
	return err
}
