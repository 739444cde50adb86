package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is a Store persisted in a SQLite database. Reads that fail are
// logged and return the zero value.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path and inserts defaults
// for names that have no stored value yet.
func OpenSQLite(path string, defaults map[string]string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create prefs directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	// One connection: SQLite has a single writer and AppendLine relies on
	// transactions not interleaving.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLite{db: db, logger: logger}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	for name, value := range defaults {
		if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO prefs (name, value) VALUES (?, ?)`, name, value); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS prefs (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Bool(name string) bool {
	return ParseBool(s.Value(name))
}

func (s *SQLite) Value(name string) string {
	v, err := value(context.Background(), s.db, name)
	if err != nil {
		s.logger.Warn("pref read failed", "name", name, "error", err)
	}
	return v
}

func (s *SQLite) SetValue(name, v string) error {
	_, err := s.db.ExecContext(context.Background(), `
	INSERT INTO prefs (name, value) VALUES (?, ?)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, name, v)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// AppendLine implements Appender inside a transaction.
func (s *SQLite) AppendLine(name, line string) (added bool, err error) {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := value(ctx, tx, name)
	if err != nil {
		return false, err
	}
	next, added := appendLine(cur, line)
	if !added {
		return false, tx.Commit()
	}
	if _, err = tx.ExecContext(ctx, `
	INSERT INTO prefs (name, value) VALUES (?, ?)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, name, next); err != nil {
		return false, fmt.Errorf("append %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func value(ctx context.Context, q queryer, name string) (string, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM prefs WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	return v, nil
}
