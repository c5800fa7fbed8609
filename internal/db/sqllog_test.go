package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records emitted log records for assertions.
type captureHandler struct {
	mu      sync.Mutex
	records []map[string]string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(name string) slog.Handler       { return h }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]string{"msg": r.Message}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.String()
		return true
	})
	h.records = append(h.records, m)
	return nil
}

func (h *captureHandler) last(t *testing.T, msg string) map[string]string {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i]["msg"] == msg {
			return h.records[i]
		}
	}
	t.Fatalf("no %q record captured", msg)
	return nil
}

func openLoggedDB(t *testing.T) (*sql.DB, *captureHandler) {
	t.Helper()
	handler := &captureHandler{}
	connector, err := NewLoggingConnector(":memory:", slog.New(handler))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	t.Cleanup(func() { _ = db.Close() })
	return db, handler
}

func TestNewLoggingConnector_NilLoggerUsesDefault(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	if _, ok := conn.(*logConnector); !ok {
		t.Fatalf("connector: got %T", conn)
	}
}

func TestLoggingConnector_StatementsLogged(t *testing.T) {
	db, handler := openLoggedDB(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	rec := handler.last(t, "sql")
	if rec["op"] != "exec" || rec["sql"] != `CREATE TABLE t (id INTEGER, name TEXT)` {
		t.Errorf("exec record: got %v", rec)
	}

	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, "alpha"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec = handler.last(t, "sql")
	if rec["op"] != "exec" {
		t.Errorf("op: got %q, want exec", rec["op"])
	}
	if _, ok := rec["args"]; !ok {
		t.Error("expected args attribute on a parametrized statement")
	}

	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	rec = handler.last(t, "sql")
	if rec["op"] != "query" || rec["sql"] != `SELECT 1` {
		t.Errorf("query record: got %v", rec)
	}
}

func TestLoggingConnector_Ping(t *testing.T) {
	db, _ := openLoggedDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
