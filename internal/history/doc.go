// Package history persists finished downloads to SQLite.
//
// A Store is the orchestrator's Recorder: each job that reaches completed,
// failed or cancelled produces exactly one row in download_history.
//
//	store, err := history.New("data/history.db", logger)
//	defer store.Close()
//	entries, err := store.List(ctx, 0) // newest 100
package history
