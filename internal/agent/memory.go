package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/llm"
)

// StoredMessage is one persisted turn of a thread.
type StoredMessage struct {
	ID         string         `json:"id"`
	ThreadID   string         `json:"thread_id"`
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Thread summarizes a conversation.
type Thread struct {
	ID        string    `json:"id"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Memory persists per-thread message history in SQLite. Threads are
// append-only and never share messages.
type Memory struct {
	db *db.DB
}

func NewMemory(database *db.DB) *Memory {
	return &Memory{db: database}
}

// Append stores msgs at the end of the thread, creating it if needed. All
// messages land in one transaction.
func (m *Memory) Append(ctx context.Context, threadID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		threadID, now, now,
	); err != nil {
		return fmt.Errorf("upserting thread: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, name, tool_call_id, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		calls := msg.ToolCalls
		if calls == nil {
			calls = []llm.ToolCall{}
		}
		callsJSON, err := json.Marshal(calls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), threadID, string(msg.Role), msg.Content,
			msg.Name, msg.ToolCallID, string(callsJSON), now,
		); err != nil {
			return fmt.Errorf("adding message: %w", err)
		}
	}

	return tx.Commit()
}

// History returns the thread as llm messages, oldest first. An unknown
// thread has an empty history.
func (m *Memory) History(ctx context.Context, threadID string) ([]llm.Message, error) {
	stored, err := m.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, len(stored))
	for i, s := range stored {
		out[i] = llm.Message{
			Role:       s.Role,
			Content:    s.Content,
			Name:       s.Name,
			ToolCallID: s.ToolCallID,
			ToolCalls:  s.ToolCalls,
		}
	}
	return out, nil
}

// Messages returns the stored messages of a thread in insertion order.
func (m *Memory) Messages(ctx context.Context, threadID string) ([]StoredMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, name, tool_call_id, tool_calls, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var s StoredMessage
		var role, callsJSON string
		if err := rows.Scan(&s.ID, &s.ThreadID, &role, &s.Content, &s.Name, &s.ToolCallID, &callsJSON, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		s.Role = llm.Role(role)
		if err := json.Unmarshal([]byte(callsJSON), &s.ToolCalls); err != nil {
			return nil, fmt.Errorf("decoding tool calls: %w", err)
		}
		if len(s.ToolCalls) == 0 {
			s.ToolCalls = nil
		}
		msgs = append(msgs, s)
	}
	return msgs, rows.Err()
}

// Threads lists threads, most recently active first.
func (m *Memory) Threads(ctx context.Context, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT s.id, s.created_at, s.updated_at, COUNT(m.seq)
		 FROM chat_sessions s LEFT JOIN chat_messages m ON m.session_id = s.id
		 GROUP BY s.id ORDER BY s.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Messages); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// Delete removes a thread and its messages.
func (m *Memory) Delete(ctx context.Context, threadID string) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, threadID); err != nil {
		return false, fmt.Errorf("deleting messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, threadID)
	if err != nil {
		return false, fmt.Errorf("deleting thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

// trimHistory keeps at most limit trailing messages, starting at a user
// message so tool results are never separated from their calls.
func trimHistory(history []llm.Message, limit int) []llm.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	trimmed := history[len(history)-limit:]
	for i, msg := range trimmed {
		if msg.Role == llm.RoleUser {
			return trimmed[i:]
		}
	}
	return nil
}
