package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store/record/migrations"
	"namereg/pkg/platform/sentinel"
)

// SQLiteStore persists records in a local SQLite file for single-node
// deployments. Transactions are opened with BEGIN IMMEDIATE over a single
// connection, so writers are serialized.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) FindByName(ctx context.Context, name models.Name) (*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM name_records WHERE name = ?`
	r, err := scanRow(s.db.QueryRowContext(ctx, query, string(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find name record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Execute(ctx context.Context, name models.Name, fn MutateFunc) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin name record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + selectColumns + ` FROM name_records WHERE name = ?`
	current, err := scanRow(tx.QueryRowContext(ctx, query, string(name)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read name record: %w", err)
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	r := toRow(next)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO name_records (name, owner, resolver, expiry, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			owner = excluded.owner,
			resolver = excluded.resolver,
			expiry = excluded.expiry,
			registered_at = excluded.registered_at,
			updated_at = excluded.updated_at
	`, r.Name, r.Owner, r.Resolver, r.Expiry, r.RegisteredAt, r.UpdatedAt)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("write name record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit name record: %w", err)
	}
	return next.Clone(), nil
}

// Count returns the number of records ever registered.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM name_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count name records: %w", err)
	}
	return n, nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
