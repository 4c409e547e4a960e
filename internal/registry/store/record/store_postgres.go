package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store/record/migrations"
	"namereg/pkg/platform/sentinel"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const selectColumns = `name, owner, resolver, expiry, registered_at, updated_at`

// Outbox stages events inside a record transaction.
type Outbox interface {
	Stage(ctx context.Context, tx *sql.Tx, evs ...models.Event) error
}

// PostgresStore persists records in PostgreSQL. Execute runs inside a
// transaction holding a row lock (SELECT ... FOR UPDATE) for existing names;
// concurrent first registrations race on the primary key and the loser gets
// sentinel.ErrConflict.
//
// With an outbox configured, ExecuteWithEvents writes the mutation's events in
// that same transaction: a committed record always has its events queued.
type PostgresStore struct {
	db     *sql.DB
	outbox Outbox
}

type PostgresOption func(*PostgresStore)

// WithOutbox stages the events of ExecuteWithEvents in outbox. The outbox
// must live in the same database as the records.
func WithOutbox(outbox Outbox) PostgresOption {
	return func(s *PostgresStore) {
		s.outbox = outbox
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrations.Postgres); err != nil {
		return fmt.Errorf("migrate name_records: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name models.Name) (*models.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM name_records WHERE name = $1`
	r, err := scanRow(s.db.QueryRowContext(ctx, query, string(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find name record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Execute(ctx context.Context, name models.Name, fn MutateFunc) (*models.Record, error) {
	return s.ExecuteWithEvents(ctx, name, func(current *models.Record) (*models.Record, []models.Event, error) {
		next, err := fn(current)
		return next, nil, err
	})
}

// ExecuteWithEvents is Execute for callbacks that also return events. The
// events are staged in the outbox before commit; without an outbox they are
// ignored.
func (s *PostgresStore) ExecuteWithEvents(ctx context.Context, name models.Name, fn EventMutateFunc) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin name record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + selectColumns + ` FROM name_records WHERE name = $1 FOR UPDATE`
	current, err := scanRow(tx.QueryRowContext(ctx, query, string(name)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock name record: %w", err)
	}

	next, evs, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	r := toRow(next)
	if current == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO name_records (name, owner, resolver, expiry, registered_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.Name, r.Owner, r.Resolver, r.Expiry, r.RegisteredAt, r.UpdatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE name_records
			SET owner = $2, resolver = $3, expiry = $4, registered_at = $5, updated_at = $6
			WHERE name = $1
		`, r.Name, r.Owner, r.Resolver, r.Expiry, r.RegisteredAt, r.UpdatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("write name record: %w", err)
	}
	if s.outbox != nil && len(evs) > 0 {
		if err := s.outbox.Stage(ctx, tx, evs...); err != nil {
			return nil, fmt.Errorf("stage name record events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("commit name record: %w", err)
	}
	return next.Clone(), nil
}

// Count returns the number of records ever registered.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM name_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count name records: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRow returns (nil, sql.ErrNoRows) when the name has no record.
func scanRow(sc scanner) (*models.Record, error) {
	var r row
	if err := sc.Scan(&r.Name, &r.Owner, &r.Resolver, &r.Expiry, &r.RegisteredAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r.toRecord()
}
