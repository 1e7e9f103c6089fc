// Package audit records every execution attempt in a SQLite database so an
// operator can see what generated code ran, how it failed and how it was
// repaired.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Status is the outcome of an attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Execution is one recorded attempt.
type Execution struct {
	ID       string
	PromptID string
	Attempt  int
	// Code is the sanitized code that ran, or the code as received when it
	// never got past sanitization.
	Code     string
	Status   Status
	Kind     string
	Error    string
	Skills   []string
	Duration time.Duration
	Created  time.Time
}

// Store is the SQLite execution log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the store at path and applies pending migrations.
// Use ":memory:" for an in-memory store.
// If logger is nil, a discard logger is used.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// An in-memory database only lives as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("opened audit store", slog.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the applied migration version.
func (s *Store) Version() (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(s.db)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts e, assigning an ID and timestamp when unset.
func (s *Store) Record(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, prompt_id, attempt, code, status, kind, error, skills, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PromptID, e.Attempt, e.Code, string(e.Status), e.Kind, e.Error,
		strings.Join(e.Skills, ","), e.Duration.Milliseconds(), e.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	s.logger.Debug("recorded execution",
		slog.String("prompt_id", e.PromptID),
		slog.Int("attempt", e.Attempt),
		slog.String("status", string(e.Status)))
	return nil
}

const selectExecutions = `SELECT id, prompt_id, attempt, code, status, kind, error, skills, duration_ms, created_at FROM executions`

// ByPrompt returns the attempts of one prompt in attempt order.
func (s *Store) ByPrompt(ctx context.Context, promptID string) ([]*Execution, error) {
	return s.query(ctx, selectExecutions+` WHERE prompt_id = ? ORDER BY attempt`, promptID)
}

// Recent returns the latest limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Execution, error) {
	return s.query(ctx, selectExecutions+` ORDER BY created_at DESC, attempt DESC LIMIT ?`, limit)
}

// LastCode returns the code of the last attempt of a prompt.
func (s *Store) LastCode(ctx context.Context, promptID string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT code FROM executions WHERE prompt_id = ? ORDER BY attempt DESC LIMIT 1`, promptID,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no executions for prompt %s", promptID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last code: %w", err)
	}
	return code, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Execution
	for rows.Next() {
		var e Execution
		var status, skills string
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.PromptID, &e.Attempt, &e.Code, &status, &e.Kind, &e.Error, &skills, &durationMS, &e.Created); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Status = Status(status)
		if skills != "" {
			e.Skills = strings.Split(skills, ",")
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read executions: %w", err)
	}
	return out, nil
}
