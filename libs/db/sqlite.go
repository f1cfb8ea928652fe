package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OpenSQLite opens a modernc SQLite database. Path ":memory:" yields a
// private in-memory database pinned to one connection.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	var dsn string
	if path == ":memory:" {
		dsn = ":memory:?" + pragmas
	} else {
		dsn = "file:" + filepath.Clean(path) + "?" + pragmas + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	return sqlDB, nil
}

func SQLiteReadyCheck(sqlDB *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if sqlDB == nil {
			return errors.New("sqlite not configured")
		}
		return sqlDB.PingContext(ctx)
	}
}

// IsSQLiteConstraint reports whether err is a uniqueness or primary key
// constraint failure.
func IsSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// isSQLiteIntegrity matches every extended constraint code, NOT NULL and
// CHECK failures included.
func isSQLiteIntegrity(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
