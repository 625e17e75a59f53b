// Package state persists the digest cache and deploy history in SQLite.
package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dl-alexandre/netdeploy/internal/logging"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps dialect, logger and FS in package globals.
var migrateMu sync.Mutex

type DB struct {
	db *sql.DB
}

// Open creates the database file if needed and applies pending migrations.
func Open(ctx context.Context, path string, logger logging.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.migrate(ctx, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return instance, nil
}

func (d *DB) migrate(ctx context.Context, logger logging.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	goose.SetLogger(logging.GooseLogger{Logger: logger})
	goose.SetBaseFS(embedMigrations)
	if err := goose.UpContext(ctx, d.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
