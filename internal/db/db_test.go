package db

import (
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	tables := []string{
		"index_chunks", "index_meta", "indexed_files", "upload_events",
		"chat_sessions", "chat_messages",
	}

	for _, table := range tables {
		var count int
		err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docqa.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer d.Close()

	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
	if _, err := d.Exec(`INSERT INTO index_meta (key, value) VALUES ('dimensions', '8')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestChatMessageRoleConstraint(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(`INSERT INTO chat_sessions (id) VALUES ('t1')`); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	if _, err := d.Exec(`INSERT INTO chat_messages (id, session_id, role, content) VALUES ('m1', 't1', 'tool', 'ok')`); err != nil {
		t.Errorf("tool role should be accepted: %v", err)
	}
	if _, err := d.Exec(`INSERT INTO chat_messages (id, session_id, role, content) VALUES ('m2', 't1', 'bot', 'no')`); err == nil {
		t.Error("expected CHECK constraint failure for unknown role")
	}
}
