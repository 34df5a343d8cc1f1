// ABOUTME: SQLite implementation of the subscriber Store using modernc.org/sqlite.
// ABOUTME: Runs without Redis; sent-mint unions are INSERT OR IGNORE rows.

package subscriber

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database. Intended for
// single-instance deployments that don't want to run Redis.
type SQLiteStore struct {
	db           *sql.DB
	historyLimit int
	logger       *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path.
// Parent directories are created if needed. historyLimit <= 0 selects
// DefaultHistoryLimit.
func NewSQLiteStore(path string, historyLimit int) (*SQLiteStore, error) {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps scheduler fan-out reads from blocking onboarding writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:           db,
		historyLimit: historyLimit,
		logger:       slog.Default().With("component", "subscriber-store"),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// createSchema creates the tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS preferences (
		recipient  TEXT PRIMARY KEY,
		preference TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sent_mints (
		recipient  TEXT NOT NULL,
		address    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (recipient, address)
	);
	CREATE TABLE IF NOT EXISTS first_sends (
		recipient  TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Preference returns the stored preference token, PreferenceUnset when none.
func (s *SQLiteStore) Preference(ctx context.Context, recipient string) (Preference, error) {
	var pref string
	err := s.db.QueryRowContext(ctx,
		"SELECT preference FROM preferences WHERE recipient = ?", recipient).Scan(&pref)
	if err == sql.ErrNoRows {
		return PreferenceUnset, nil
	}
	if err != nil {
		return PreferenceUnset, fmt.Errorf("reading preference for %s: %w", recipient, err)
	}
	return Preference(pref), nil
}

// SetPreference upserts the preference.
func (s *SQLiteStore) SetPreference(ctx context.Context, recipient string, pref Preference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (recipient, preference, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(recipient) DO UPDATE SET preference = excluded.preference, updated_at = excluded.updated_at`,
		recipient, string(pref), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing preference for %s: %w", recipient, err)
	}
	return nil
}

// DeletePreference removes the preference, reporting whether one existed.
func (s *SQLiteStore) DeletePreference(ctx context.Context, recipient string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM preferences WHERE recipient = ?", recipient)
	if err != nil {
		return false, fmt.Errorf("deleting preference for %s: %w", recipient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting preference for %s: %w", recipient, err)
	}
	return n > 0, nil
}

// SentMints returns the delivered-address set for a recipient.
func (s *SQLiteStore) SentMints(ctx context.Context, recipient string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT address FROM sent_mints WHERE recipient = ?", recipient)
	if err != nil {
		return nil, fmt.Errorf("reading sent mints for %s: %w", recipient, err)
	}
	defer rows.Close()

	sent := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scanning sent mint: %w", err)
		}
		sent[addr] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sent mints for %s: %w", recipient, err)
	}
	return sent, nil
}

// AddSentMints unions addresses into the sent set inside one transaction.
// INSERT OR IGNORE makes the union idempotent and safe against concurrent
// writers; older rows beyond the history limit are evicted afterwards.
func (s *SQLiteStore) AddSentMints(ctx context.Context, recipient string, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, addr := range addresses {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO sent_mints (recipient, address, created_at) VALUES (?, ?, ?)",
			recipient, addr, now); err != nil {
			return fmt.Errorf("recording sent mint %s for %s: %w", addr, recipient, err)
		}
	}

	// Keep only the most recent entries per recipient
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sent_mints
		WHERE recipient = ? AND rowid NOT IN (
			SELECT rowid FROM sent_mints
			WHERE recipient = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`, recipient, recipient, s.historyLimit); err != nil {
		return fmt.Errorf("trimming sent mints for %s: %w", recipient, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sent mints for %s: %w", recipient, err)
	}
	return nil
}

// FirstSendDone reports whether the first-send flag is set.
func (s *SQLiteStore) FirstSendDone(ctx context.Context, recipient string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM first_sends WHERE recipient = ?", recipient).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading first-send flag for %s: %w", recipient, err)
	}
	return true, nil
}

// MarkFirstSend sets the first-send flag.
func (s *SQLiteStore) MarkFirstSend(ctx context.Context, recipient string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO first_sends (recipient, created_at) VALUES (?, ?)",
		recipient, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting first-send flag for %s: %w", recipient, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
