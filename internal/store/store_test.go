package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saitejavellanki/mathres/internal/llmcall"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "mathres.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_SaveResult(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	op, err := s.SaveResult(ctx, "script-1", "math", []byte(`{"total_pairs":1}`))
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if op != OpCreated {
		t.Errorf("first SaveResult() op = %q, want created", op)
	}

	first, err := s.GetResult(ctx, "script-1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}

	op, err = s.SaveResult(ctx, "script-1", "math", []byte(`{"total_pairs":2}`))
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if op != OpUpdated {
		t.Errorf("second SaveResult() op = %q, want updated", op)
	}

	got, err := s.GetResult(ctx, "script-1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if string(got.Restructured) != `{"total_pairs":2}` {
		t.Errorf("Restructured = %s", got.Restructured)
	}
	if got.ID != first.ID {
		t.Errorf("update changed row id: %s -> %s", first.ID, got.ID)
	}
	if got.SubjectID != "math" {
		t.Errorf("SubjectID = %q", got.SubjectID)
	}
	if got.UpdatedAt.Before(first.UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}
}

func TestSQLStore_Validation(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	if _, err := s.SaveResult(ctx, "", "", []byte(`{}`)); err == nil {
		t.Error("expected error for empty script id")
	}
	if _, err := s.SaveResult(ctx, "s", "", []byte(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := s.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResult() error = %v, want ErrNotFound", err)
	}
}

func TestSQLStore_PromptOverrides(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	text, err := s.PromptOverride(ctx, "math", "agents.marking.system")
	if err != nil || text != "" {
		t.Fatalf("PromptOverride() = %q, %v; want empty", text, err)
	}

	if err := s.SetPromptOverride(ctx, "math", "agents.marking.system", "v1", "first"); err != nil {
		t.Fatalf("SetPromptOverride() error = %v", err)
	}
	if err := s.SetPromptOverride(ctx, "math", "agents.marking.system", "v2", ""); err != nil {
		t.Fatalf("SetPromptOverride() error = %v", err)
	}
	text, _ = s.PromptOverride(ctx, "math", "agents.marking.system")
	if text != "v2" {
		t.Errorf("PromptOverride() = %q, want v2", text)
	}

	if err := s.SetPromptOverride(ctx, "math", "agents.marking.system", "", ""); err != nil {
		t.Fatalf("clear override error = %v", err)
	}
	text, _ = s.PromptOverride(ctx, "math", "agents.marking.system")
	if text != "" {
		t.Errorf("PromptOverride() after clear = %q", text)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openSQLite(t)
	if err := Migrate(context.Background(), s.DB(), DriverSQLite); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version_id > 0`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 3 {
		t.Errorf("applied migrations = %d, want 3", n)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), DriverSQLite, ""); err == nil {
		t.Error("expected error for empty dsn")
	}
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPlaceholderRewrite(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	if got := pg.q(`SELECT a FROM t WHERE b = ? AND c = ?`); got != `SELECT a FROM t WHERE b = $1 AND c = $2` {
		t.Errorf("q() = %q", got)
	}
	lite := &SQLStore{driver: DriverSQLite}
	if got := lite.q(`WHERE b = ?`); got != `WHERE b = ?` {
		t.Errorf("q() = %q", got)
	}
}

func TestSQLStore_Postgres(t *testing.T) {
	dsn := os.Getenv("MATHRES_TEST_POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("MATHRES_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	scriptID := "pg-test-" + t.Name()
	t.Cleanup(func() { _, _ = s.DB().Exec(`DELETE FROM results WHERE script_id = $1`, scriptID) })

	if _, err := s.SaveResult(ctx, scriptID, "math", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	op, err := s.SaveResult(ctx, scriptID, "math", []byte(`{"a":2}`))
	if err != nil || op != OpUpdated {
		t.Fatalf("SaveResult() = %q, %v; want updated", op, err)
	}
}

func TestSQLStore_LLMCalls(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := []*llmcall.Call{
		{ID: "c1", Timestamp: base, RunID: "r1", ScriptID: "s1", Agent: "question_restructure", Success: true, InputTokens: 10},
		{ID: "c2", Timestamp: base.Add(time.Second), RunID: "r1", ScriptID: "s1", Agent: "marking", Success: true},
		{ID: "c3", Timestamp: base.Add(2 * time.Second), RunID: "r2", ScriptID: "s2", Agent: "marking", Error: "timeout"},
	}
	for _, c := range calls {
		if err := s.InsertLLMCall(ctx, c); err != nil {
			t.Fatalf("InsertLLMCall(%s) error = %v", c.ID, err)
		}
	}
	if err := s.InsertLLMCall(ctx, &llmcall.Call{}); err == nil {
		t.Error("expected error for call without id")
	}

	all, err := s.ListLLMCalls(ctx, llmcall.QueryFilter{})
	if err != nil {
		t.Fatalf("ListLLMCalls() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "c3" {
		t.Fatalf("ListLLMCalls() = %+v, want newest first", all)
	}

	run, _ := s.ListLLMCalls(ctx, llmcall.QueryFilter{RunID: "r1"})
	if len(run) != 2 || run[1].InputTokens != 10 || !run[1].Success {
		t.Errorf("run r1 = %+v", run)
	}

	failed := false
	bad, _ := s.ListLLMCalls(ctx, llmcall.QueryFilter{Success: &failed})
	if len(bad) != 1 || bad[0].Error != "timeout" {
		t.Errorf("failed calls = %+v", bad)
	}

	page, _ := s.ListLLMCalls(ctx, llmcall.QueryFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "c2" {
		t.Errorf("page = %+v", page)
	}
}
