package history

func (s *Store) runMigrations() error {
	schema := `
CREATE TABLE IF NOT EXISTS download_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id      TEXT UNIQUE NOT NULL,
	video_id     TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL,
	filename     TEXT NOT NULL DEFAULT '',
	format       TEXT NOT NULL DEFAULT '',
	audio_only   BOOLEAN NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,          -- completed|failed|cancelled
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_history_status ON download_history(status);
CREATE INDEX IF NOT EXISTS idx_history_created ON download_history(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_video ON download_history(video_id);
`
	_, err := s.db.Exec(schema)
	return err
}
