// Package journal keeps the history of invocations in SQLite. It is written
// by the CLI and the bridge; the dispatcher never reads it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gogins/csound-ac/internal/launch"
	"github.com/gogins/csound-ac/internal/log"
)

const (
	KindShell = "shell"
	KindURL   = "url"

	// DefaultLimit bounds Recent when the caller passes no limit.
	DefaultLimit = 50
	maxErrorLen  = 4 * 1024
)

var ErrNotFound = errors.New("journal entry not found")

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts e. A missing ID or StartedAt is filled in; the ID is returned.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.ActionID == "" {
		return "", fmt.Errorf("action is empty")
	}
	if e.Kind == "" {
		return "", fmt.Errorf("kind is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	var command any
	if len(e.Command) > 0 {
		b, err := json.Marshal(e.Command)
		if err != nil {
			return "", fmt.Errorf("encode command: %w", err)
		}
		command = string(b)
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO launch_log(
  id, action, kind, document_path, working_dir, command, url, mode, pid,
  started_at, exited_at, exit_code, last_error
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.ActionID, e.Kind, nullString(e.DocumentPath), nullString(e.WorkingDir), command,
		nullString(e.URL), nullString(e.Mode), nullInt(e.PID),
		e.StartedAt.UTC().Format(time.RFC3339Nano), formatTimePtr(e.ExitedAt), e.ExitCode, truncate(e.Error))
	if err != nil {
		return "", fmt.Errorf("record invocation: %w", err)
	}
	return e.ID, nil
}

// RecordLaunch records a started launch under the handle's ID.
func (j *Journal) RecordLaunch(ctx context.Context, h *launch.Handle) error {
	_, err := j.Record(ctx, Entry{
		ID:           h.ID,
		ActionID:     h.ActionID,
		Kind:         KindShell,
		DocumentPath: h.DocumentPath,
		WorkingDir:   h.WorkingDir,
		Command:      h.Argv,
		Mode:         string(h.Mode),
		PID:          h.PID,
		StartedAt:    h.StartedAt,
	})
	return err
}

// RecordURL records an opened documentation URL.
func (j *Journal) RecordURL(ctx context.Context, actionID, url string) (string, error) {
	return j.Record(ctx, Entry{ActionID: actionID, Kind: KindURL, URL: url})
}

// RecordFailure records an invocation that never started.
func (j *Journal) RecordFailure(ctx context.Context, actionID, kind, documentPath string, cause error) (string, error) {
	msg := cause.Error()
	return j.Record(ctx, Entry{ActionID: actionID, Kind: kind, DocumentPath: documentPath, Error: &msg})
}

// MarkExited stores the exit status of a launch.
func (j *Journal) MarkExited(ctx context.Context, id string, exitCode int, exitErr error) error {
	var lastError *string
	if exitErr != nil {
		msg := exitErr.Error()
		lastError = &msg
	}
	res, err := j.db.ExecContext(ctx, `
UPDATE launch_log
SET exited_at = ?, exit_code = ?, last_error = COALESCE(?, last_error)
WHERE id = ?;
`, time.Now().UTC().Format(time.RFC3339Nano), exitCode, truncate(lastError), id)
	if err != nil {
		return fmt.Errorf("mark exited: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Track marks h exited in the journal once its process ends.
// Detached handles are never observed and are left open.
func (j *Journal) Track(h *launch.Handle) {
	if h.Detached {
		return
	}
	go func() {
		<-h.Done()
		code, _ := h.Exited()
		var exitErr error
		if code != 0 {
			exitErr = fmt.Errorf("exit status %d", code)
		}
		if err := j.MarkExited(context.Background(), h.ID, code, exitErr); err != nil {
			log.WithLaunch(h.ID).Warn("failed to record exit", "error", err)
		}
	}()
}

// Get returns one entry by ID.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Recent returns up to limit entries, newest first. An empty action matches all.
func (j *Journal) Recent(ctx context.Context, limit int, action string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := selectColumns
	args := []any{}
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const selectColumns = `
SELECT id, action, kind, document_path, working_dir, command, url, mode, pid,
  started_at, exited_at, exit_code, last_error
FROM launch_log`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                            Entry
		doc, dir, command, url, mode sql.NullString
		pid, exitCode                sql.NullInt64
		startedAt                    string
		exitedAt, lastError          sql.NullString
	)
	if err := s.Scan(&e.ID, &e.ActionID, &e.Kind, &doc, &dir, &command, &url, &mode, &pid,
		&startedAt, &exitedAt, &exitCode, &lastError); err != nil {
		return nil, err
	}

	e.DocumentPath = doc.String
	e.WorkingDir = dir.String
	e.URL = url.String
	e.Mode = mode.String
	e.PID = int(pid.Int64)
	if command.Valid && command.String != "" {
		if err := json.Unmarshal([]byte(command.String), &e.Command); err != nil {
			return nil, fmt.Errorf("decode command for %s: %w", e.ID, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at for %s: %w", e.ID, err)
	}
	e.StartedAt = t
	if exitedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, exitedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse exited_at for %s: %w", e.ID, err)
		}
		e.ExitedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	if lastError.Valid {
		msg := lastError.String
		e.Error = &msg
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func truncate(s *string) any {
	if s == nil {
		return nil
	}
	if len(*s) <= maxErrorLen {
		return *s
	}
	return (*s)[:maxErrorLen]
}
