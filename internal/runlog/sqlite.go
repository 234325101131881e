package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

// Store persists run logs for later inspection.
type Store interface {
	Save(ctx context.Context, log Log) error
	Get(ctx context.Context, runID string) (*Log, error)
	List(ctx context.Context, limit int) ([]Log, error)
	Close() error
}

// SQLiteStore is a SQLite-backed run log store.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (and migrates) a run log database at the given path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open run log database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS parse_runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS parse_run_entries (
			run_id TEXT NOT NULL REFERENCES parse_runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			logged_at TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			title TEXT NOT NULL,
			detail TEXT,
			field TEXT,
			PRIMARY KEY (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_parse_runs_created ON parse_runs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate run log schema: %w", err)
	}
	return nil
}

// Save writes a run log and all its entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, log Log) error {
	if log.RunID == "" {
		return fmt.Errorf("run ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO parse_runs (run_id, created_at) VALUES (?, ?)`,
		log.RunID, log.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM parse_run_entries WHERE run_id = ?`, log.RunID); err != nil {
		return fmt.Errorf("failed to clear run entries: %w", err)
	}

	for i, e := range log.Entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO parse_run_entries (run_id, seq, logged_at, entry_type, title, detail, field)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			log.RunID, i, e.Timestamp.Format(time.RFC3339Nano), string(e.Type), e.Title, e.Detail, e.Field)
		if err != nil {
			return fmt.Errorf("failed to insert run entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run log: %w", err)
	}

	slog.Debug("saved parse run log", "run_id", log.RunID, "entries", len(log.Entries))
	return nil
}

// Get retrieves one run log by ID.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Log, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	var createdAtStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM parse_runs WHERE run_id = ?`, runID).Scan(&createdAtStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
	}

	entries, err := s.loadEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Log{RunID: runID, CreatedAt: createdAt, Entries: entries}, nil
}

// List returns the most recent run logs, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at FROM parse_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []Log
	for rows.Next() {
		var runID, createdAtStr string
		if err := rows.Scan(&runID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		entries, err := s.loadEntries(ctx, runID)
		if err != nil {
			return nil, err
		}
		logs = append(logs, Log{RunID: runID, CreatedAt: createdAt, Entries: entries})
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) loadEntries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT logged_at, entry_type, title, detail, field
		 FROM parse_run_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var loggedAtStr, entryType, title string
		var detail, field sql.NullString
		if err := rows.Scan(&loggedAtStr, &entryType, &title, &detail, &field); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		loggedAt, err := time.Parse(time.RFC3339Nano, loggedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry timestamp: %w", err)
		}
		entries = append(entries, Entry{
			Timestamp: loggedAt,
			Type:      EntryType(entryType),
			Title:     title,
			Detail:    detail.String,
			Field:     field.String,
		})
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
