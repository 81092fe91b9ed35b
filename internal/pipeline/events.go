package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/docqa/internal/db"
)

// UploadEvent is one row of the upload ledger.
type UploadEvent struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	StoredAs      string    `json:"stored_as"`
	Namespace     string    `json:"namespace"`
	State         State     `json:"state"`
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	Chunks        int       `json:"chunks"`
	ContentSHA256 string    `json:"content_sha256"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventLog appends upload outcomes to SQLite.
type EventLog struct {
	db *db.DB
}

func NewEventLog(d *db.DB) *EventLog {
	return &EventLog{db: d}
}

// Record appends ev. Records are never updated.
func (l *EventLog) Record(ctx context.Context, ev UploadEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO upload_events (id, filename, stored_as, namespace, state, success, message, chunks, content_sha256, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Filename, ev.StoredAs, ev.Namespace, string(ev.State), ev.Success,
		ev.Message, ev.Chunks, ev.ContentSHA256, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record upload event: %w", err)
	}
	return nil
}

// List returns the most recent events first. A limit of zero returns all.
func (l *EventLog) List(ctx context.Context, limit int) ([]UploadEvent, error) {
	query := `SELECT id, filename, stored_as, namespace, state, success, message, chunks, content_sha256, created_at
		FROM upload_events ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list upload events: %w", err)
	}
	defer rows.Close()

	var events []UploadEvent
	for rows.Next() {
		var ev UploadEvent
		var state string
		if err := rows.Scan(&ev.ID, &ev.Filename, &ev.StoredAs, &ev.Namespace, &state,
			&ev.Success, &ev.Message, &ev.Chunks, &ev.ContentSHA256, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload event: %w", err)
		}
		ev.State = State(state)
		events = append(events, ev)
	}
	return events, rows.Err()
}
