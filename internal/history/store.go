package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status records how a run ended.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("history: entry not found")

// Entry is one recorded pipeline run.
type Entry struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title,omitempty"`
	AudioPath      string    `json:"audio_path,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	Model          string    `json:"model,omitempty"`
	Language       string    `json:"language,omitempty"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	MediaSeconds   float64   `json:"media_seconds,omitempty"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store keeps run history in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		url             TEXT NOT NULL,
		title           TEXT,
		audio_path      TEXT,
		transcript_path TEXT,
		model           TEXT,
		language        TEXT,
		status          TEXT NOT NULL,
		error           TEXT,
		media_seconds   REAL NOT NULL DEFAULT 0,
		elapsed_ms      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL
	)`)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one entry and returns its id. A zero CreatedAt is
// stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.URL == "" {
		return 0, errors.New("history: url is required")
	}
	if e.Status != StatusDone && e.Status != StatusFailed {
		return 0, fmt.Errorf("history: invalid status %q", e.Status)
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (url, title, audio_path, transcript_path, model, language, status, error, media_seconds, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.URL, e.Title, e.AudioPath, e.TranscriptPath, e.Model, e.Language,
		string(e.Status), e.Error, e.MediaSeconds, e.ElapsedMS,
		created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert: %w", err)
	}

	id, _ := res.LastInsertId()
	return id, nil
}

// List returns the most recent entries, newest first. An empty status
// returns entries regardless of how they ended.
func (s *Store) List(ctx context.Context, limit int, status Status) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, url, title, audio_path, transcript_path, model, language, status, error, media_seconds, elapsed_ms, created_at
		 FROM runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// ParseStatus validates a status filter string from the CLI or the API.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusDone, StatusFailed:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("history: unknown status %q", raw)
	}
}

// Get returns a single entry by id.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, audio_path, transcript_path, model, language, status, error, media_seconds, elapsed_ms, created_at
		 FROM runs WHERE id = ?`, id)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("history: get: %w", err)
	}
	return e, nil
}

// Clear removes all entries and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var e Entry
	var title, audioPath, transcriptPath, model, language, errMsg sql.NullString
	var status, created string
	if err := scan(&e.ID, &e.URL, &title, &audioPath, &transcriptPath, &model,
		&language, &status, &errMsg, &e.MediaSeconds, &e.ElapsedMS, &created); err != nil {
		return Entry{}, err
	}

	e.Title = title.String
	e.AudioPath = audioPath.String
	e.TranscriptPath = transcriptPath.String
	e.Model = model.String
	e.Language = language.String
	e.Status = Status(status)
	e.Error = errMsg.String
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}
