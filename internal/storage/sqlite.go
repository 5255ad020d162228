package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rmcli/internal/model"

	_ "modernc.org/sqlite"
)

const (
	journalFile = "history.db"

	// MaxJournalEntries bounds the call journal.
	MaxJournalEntries = 500
)

// ensureSecureFile creates a file with secure permissions if it doesn't exist,
// or verifies/fixes permissions if it does exist. This prevents a TOCTOU race
// condition where the file could be created with insecure default permissions.
func ensureSecureFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, secureFileMode)
		if err != nil {
			return fmt.Errorf("failed to create secure file: %w", err)
		}
		f.Close()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if info.Mode().Perm() != secureFileMode {
		if err := os.Chmod(path, secureFileMode); err != nil {
			return fmt.Errorf("failed to set secure permissions: %w", err)
		}
	}
	return nil
}

// Journal is the SQLite-backed call journal. It only records; nothing reads
// it back to answer API calls.
type Journal struct {
	db *sql.DB
}

// JournalPath returns the journal location inside a data directory.
func JournalPath(dataDir string) string {
	return filepath.Join(dataDir, journalFile)
}

// OpenJournal opens (and if needed creates) the journal database.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), secureDirMode); err != nil {
		return nil, err
	}

	// Create database file with secure permissions before sqlite opens it
	if err := ensureSecureFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Several CLI processes may append at once
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		profile_id TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error_code INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_calls_timestamp ON calls(timestamp DESC);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Record appends a call and trims the journal to MaxJournalEntries.
func (j *Journal) Record(rec model.CallRecord) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO calls (
			id, timestamp, profile_id, method, path, status_code, error_code, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC(), rec.ProfileID, rec.Method, rec.Path,
		rec.StatusCode, rec.ErrorCode, rec.DurationMs,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		DELETE FROM calls
		WHERE id NOT IN (
			SELECT id FROM calls ORDER BY timestamp DESC LIMIT ?
		)`, MaxJournalEntries)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// List returns the newest entries first. A limit <= 0 returns everything kept.
func (j *Journal) List(limit int) ([]model.CallRecord, error) {
	if limit <= 0 {
		limit = MaxJournalEntries
	}

	rows, err := j.db.Query(`
		SELECT id, timestamp, profile_id, method, path, status_code, error_code, duration_ms
		FROM calls
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.CallRecord{}
	for rows.Next() {
		var rec model.CallRecord
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.ProfileID, &rec.Method, &rec.Path,
			&rec.StatusCode, &rec.ErrorCode, &rec.DurationMs,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Get returns one entry, or nil when the id is unknown.
func (j *Journal) Get(id string) (*model.CallRecord, error) {
	row := j.db.QueryRow(`
		SELECT id, timestamp, profile_id, method, path, status_code, error_code, duration_ms
		FROM calls
		WHERE id = ?`, id)

	var rec model.CallRecord
	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.ProfileID, &rec.Method, &rec.Path,
		&rec.StatusCode, &rec.ErrorCode, &rec.DurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Clear removes every entry.
func (j *Journal) Clear() error {
	_, err := j.db.Exec("DELETE FROM calls")
	return err
}
