package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Jeffrey0117/Ytify/internal/download"
	"github.com/Jeffrey0117/Ytify/internal/model"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Entry is one row of the download history.
type Entry struct {
	ID          int64      `json:"id"`
	TaskID      string     `json:"task_id"`
	VideoID     string     `json:"video_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url"`
	Filename    string     `json:"filename,omitempty"`
	Format      string     `json:"format"`
	AudioOnly   bool       `json:"audio_only"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store keeps terminal job outcomes in SQLite. It implements
// download.Recorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at path and applies the
// schema.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordTerminal inserts the outcome of one job. A second record for the
// same job replaces the first.
func (s *Store) RecordTerminal(ctx context.Context, rec download.Record) error {
	var completed sql.NullTime
	if !rec.CompletedAt.IsZero() {
		completed = sql.NullTime{Time: rec.CompletedAt.UTC(), Valid: true}
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO download_history (
	task_id, video_id, title, url, filename, format, audio_only,
	status, error, created_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Metadata["id"],
		rec.Title,
		rec.Target,
		rec.Metadata["filename"],
		string(rec.Quality),
		rec.Mode == model.ModeAudio,
		string(rec.Status),
		rec.Error,
		created.UTC(),
		completed,
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.JobID, err)
	}
	s.logger.Debug("history recorded", "job_id", rec.JobID, "status", rec.Status)
	return nil
}

// List returns up to limit entries, most recent first. A limit of zero or
// less means DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_id, video_id, title, url, filename, format, audio_only,
       status, error, created_at, completed_at
FROM download_history
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var completed sql.NullTime
		if err := rows.Scan(&e.ID, &e.TaskID, &e.VideoID, &e.Title, &e.URL, &e.Filename,
			&e.Format, &e.AudioOnly, &e.Status, &e.Error, &e.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every entry and reports how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}
