package kv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/httprunner/FieldSync/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	defaultDBDirName  = ".fieldsync"
	defaultDBFileName = "queue.sqlite"
	kvTableName       = "kv_store"
)

// SQLite is a Store backed by a single SQLite table. Every Set is one
// autocommitted UPSERT, so a value is either fully replaced or untouched.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
// An empty path resolves via ResolveDatabasePath.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		resolved, err := ResolveDatabasePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	} else if err := ensureDirExists(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "kv: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("db_path", path).Msg("kv: sqlite store opened")
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("kv: sqlite store nil")
	}
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, quoteIdent(kvTableName))
	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "kv: get %s failed", key)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return errors.New("kv: sqlite store nil")
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, quoteIdent(kvTableName))
	args := []any{key, value, time.Now().UnixMilli()}
	if err := execWithRetry(ctx, s.db, stmt, args...); err != nil {
		return errors.Wrapf(err, "kv: set %s failed", key)
	}
	log.Trace().Str("key", key).Int("bytes", len(value)).Msg("kv: value written")
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("kv: sqlite store nil")
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, quoteIdent(kvTableName))
	if err := execWithRetry(ctx, s.db, stmt, key); err != nil {
		return errors.Wrapf(err, "kv: remove %s failed", key)
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("kv: sqlite store nil")
	}
	// Byte-wise range on the primary key; substr() would count characters.
	query := fmt.Sprintf(`SELECT key FROM %s WHERE key >= ? ORDER BY key`, quoteIdent(kvTableName))
	args := []any{prefix}
	if end, ok := prefixEnd(prefix); ok {
		query = fmt.Sprintf(`SELECT key FROM %s WHERE key >= ? AND key < ? ORDER BY key`, quoteIdent(kvTableName))
		args = append(args, end)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "kv: list keys failed")
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "kv: scan key failed")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "kv: iterate keys failed")
	}
	return keys, nil
}

// prefixEnd is the smallest string greater than every string starting with
// prefix. ok is false when no such bound exists (empty or all 0xff bytes).
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ResolveDatabasePath returns the absolute path to the queue database,
// creating the parent directory if necessary.
func ResolveDatabasePath() (string, error) {
	if custom := env.String(env.DBPath, ""); custom != "" {
		if err := ensureDirExists(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "kv: locate user home failed")
	}
	dir := filepath.Join(home, defaultDBDirName)
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "kv: create dir %s failed", path)
	}
	return nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		// FULL fsyncs the WAL on every commit; the queue must survive power loss, not only a process kill.
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "kv: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`, quoteIdent(kvTableName))
	if _, err := db.Exec(createTable); err != nil {
		return errors.Wrap(err, "kv: init sqlite schema failed")
	}
	return nil
}

func execWithRetry(ctx context.Context, db *sql.DB, stmt string, args ...any) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := db.ExecContext(ctx, stmt, args...)
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) || attempt == maxAttempts-1 {
			return err
		}
		backoff := time.Duration(attempt+1) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func quoteIdent(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	escaped := strings.ReplaceAll(trimmed, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
