// Package store persists restructure results and prompt overrides in SQL.
// Postgres is reached through pgx; SQLite through the pure-Go modernc driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Operations reported by SaveResult.
const (
	OpCreated = "created"
	OpUpdated = "updated"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// Store persists restructure results.
type Store interface {
	SaveResult(ctx context.Context, scriptID, subjectID string, doc []byte) (string, error)
	GetResult(ctx context.Context, scriptID string) (*Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// Result is a stored restructure result.
type Result struct {
	ID           string          `json:"id"`
	ScriptID     string          `json:"script_id"`
	SubjectID    string          `json:"subject_id"`
	Restructured json.RawMessage `json:"restructured"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	case DriverSQLite:
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// Serialize writers; SQLite allows one at a time.
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := Migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the normalized driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveResult inserts the result for scriptID or replaces the stored
// document if one exists. It reports OpCreated or OpUpdated.
func (s *SQLStore) SaveResult(ctx context.Context, scriptID, subjectID string, doc []byte) (string, error) {
	if scriptID == "" {
		return "", errors.New("script id is required")
	}
	if !json.Valid(doc) {
		return "", errors.New("result document is not valid JSON")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	op := OpUpdated

	var id string
	err = tx.QueryRowContext(ctx, s.q(`SELECT id FROM results WHERE script_id = ?`), scriptID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		op = OpCreated
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO results (id, script_id, subject_id, restructured, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
			uuid.NewString(), scriptID, subjectID, string(doc), now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			s.q(`UPDATE results SET subject_id = ?, restructured = ?, updated_at = ? WHERE id = ?`),
			subjectID, string(doc), now, id)
	}
	if err != nil {
		return "", fmt.Errorf("save result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return op, nil
}

// GetResult returns the stored result for scriptID.
func (s *SQLStore) GetResult(ctx context.Context, scriptID string) (*Result, error) {
	var (
		r   Result
		doc string
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, script_id, subject_id, restructured, created_at, updated_at FROM results WHERE script_id = ?`),
		scriptID).Scan(&r.ID, &r.ScriptID, &r.SubjectID, &doc, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result for script %s: %w", scriptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	r.Restructured = json.RawMessage(doc)
	return &r, nil
}

// PromptOverride returns the subject's override for a prompt key, or ""
// when there is none.
func (s *SQLStore) PromptOverride(ctx context.Context, subjectID, key string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT text FROM prompt_overrides WHERE subject_id = ? AND prompt_key = ?`),
		subjectID, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get prompt override: %w", err)
	}
	return text, nil
}

// SetPromptOverride stores a prompt override for a subject. An empty text
// removes the override.
func (s *SQLStore) SetPromptOverride(ctx context.Context, subjectID, key, text, note string) error {
	if text == "" {
		_, err := s.db.ExecContext(ctx,
			s.q(`DELETE FROM prompt_overrides WHERE subject_id = ? AND prompt_key = ?`), subjectID, key)
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		s.q(`UPDATE prompt_overrides SET text = ?, note = ?, updated_at = ? WHERE subject_id = ? AND prompt_key = ?`),
		text, note, now, subjectID, key)
	if err != nil {
		return fmt.Errorf("update prompt override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO prompt_overrides (subject_id, prompt_key, text, note, updated_at) VALUES (?, ?, ?, ?, ?)`),
			subjectID, key, text, note, now); err != nil {
			return fmt.Errorf("insert prompt override: %w", err)
		}
	}
	return tx.Commit()
}

// q rewrites ? placeholders to $N for Postgres.
func (s *SQLStore) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ Store = (*SQLStore)(nil)
