package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // register SQLite driver via side effects for database/sql
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const pragmaTimeout = 5 * time.Second

type Store struct{ db *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pragmaTimeout)
	defer cancel()

	// Busy timeout and WAL let the CLI read history while a pipe is writing.
	if _, e := db.ExecContext(ctx, `
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); e != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", e)
	}

	if e := migrateUp(context.Background(), db); e != nil {
		_ = db.Close()
		return nil, e
	}

	return &Store{db: db}, nil
}

// OpenFile opens the journal at a filesystem path, creating its directory.
// A value that already carries the "file:" scheme is used as is.
func OpenFile(path string) (*Store, error) {
	if strings.HasPrefix(path, "file:") {
		return Open(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	return Open("file:" + path)
}

func (s *Store) Close() error { return s.db.Close() }

func migrateUp(ctx context.Context, db *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
