// Package journal persists executed DDL, drift warnings and per-table
// outcomes to a local SQLite file.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-schema-sync/pkg/models"
	_ "modernc.org/sqlite"
)

// Entry kinds
const (
	KindStatement = "statement"
	KindPlanned   = "dry-run"
	KindWarning   = "warning"
	KindResult    = "result"
)

// Entry is one journal row
type Entry struct {
	ID          int64
	RunID       string
	Database    string
	Table       string
	Kind        string
	Text        string
	Fingerprint string
	CreatedAt   time.Time
}

// Journal records synchronization runs. It implements the synchronizer's audit sink.
type Journal struct {
	db       *sql.DB
	RunID    string
	Database string
	Logger   *logrus.Logger
}

// Open opens or creates the journal database at path
func Open(path string, logger *logrus.Logger) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal: path must not be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: db, Logger: logger}, nil
}

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			database_name TEXT NOT NULL,
			started_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
	`)
	return err
}

// Close closes the journal database
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun starts a new run against the named database
func (j *Journal) BeginRun(database string) (string, error) {
	now := time.Now().UTC()
	runID := now.Format("20060102T150405.000000000Z")

	_, err := j.db.Exec("INSERT INTO runs (run_id, database_name, started_at) VALUES (?, ?, ?)",
		runID, database, now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	j.RunID = runID
	j.Database = database
	return runID, nil
}

// Statement records an executed DDL statement
func (j *Journal) Statement(table, stmt string) {
	if err := j.Record(KindStatement, table, stmt, ""); err != nil {
		j.Logger.Errorf("Error writing journal: %v", err)
	}
}

// Planned records a dry-run statement that was not executed
func (j *Journal) Planned(table, stmt string) {
	if err := j.Record(KindPlanned, table, stmt, ""); err != nil {
		j.Logger.Errorf("Error writing journal: %v", err)
	}
}

// Warning records a drift warning
func (j *Journal) Warning(table, message string) {
	if err := j.Record(KindWarning, table, message, ""); err != nil {
		j.Logger.Errorf("Error writing journal: %v", err)
	}
}

// RecordResult records the outcome of one table with its schema fingerprint
func (j *Journal) RecordResult(result *models.TableResult) error {
	outcome := "unchanged"
	switch {
	case result.Failed():
		outcome = "failed: " + result.Err.Error()
	case result.Created:
		outcome = "created"
	case result.Changed():
		outcome = "altered"
	}
	if result.DryRun && !result.Failed() {
		outcome = "dry-run: " + outcome
	}
	return j.Record(KindResult, result.Table, outcome, result.Fingerprint)
}

// Record inserts one entry for the current run
func (j *Journal) Record(kind, table, text, fingerprint string) error {
	if j.RunID == "" {
		return fmt.Errorf("journal: no run started")
	}

	_, err := j.db.Exec(
		"INSERT INTO entries (run_id, table_name, kind, text, fingerprint, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		j.RunID, table, kind, text, fingerprint, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// History returns the latest entries, newest first
func (j *Journal) History(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(`
		SELECT e.id, e.run_id, COALESCE(r.database_name, ''), e.table_name, e.kind, e.text, e.fingerprint, e.created_at
		FROM entries e
		LEFT JOIN runs r ON r.run_id = e.run_id
		ORDER BY e.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Database, &e.Table, &e.Kind, &e.Text, &e.Fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
