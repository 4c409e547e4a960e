// Package postgres implements the transactional outbox for registry events.
// Envelopes are written to event_outbox and forwarded to Kafka by the relay.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"namereg/internal/events"
	"namereg/internal/registry/models"
	"namereg/pkg/domain"
)

//go:embed schema.sql
var schema string

// Store implements events.Store using the outbox pattern.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the outbox table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate event_outbox: %w", err)
	}
	return nil
}

// Append inserts envelopes in one transaction so a mutation's events are
// either all queued or none are. It is used when the records live outside
// this database; delivery then follows the record commit.
func (s *Store) Append(ctx context.Context, envelopes ...events.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insert(ctx, tx, envelopes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox entries: %w", err)
	}
	return nil
}

// Stage wraps evs and inserts them in tx, the caller's record transaction.
// Envelopes are stamped with the request time and request id found in ctx.
func (s *Store) Stage(ctx context.Context, tx *sql.Tx, evs ...models.Event) error {
	envelopes, err := events.WrapAll(ctx, evs...)
	if err != nil {
		return err
	}
	return insert(ctx, tx, envelopes)
}

func insert(ctx context.Context, tx *sql.Tx, envelopes []events.Envelope) error {
	const query = `
		INSERT INTO event_outbox (id, name, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	for _, env := range envelopes {
		body, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal outbox entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			env.ID.String(),
			string(env.Name),
			string(env.Type),
			body,
			env.OccurredAt,
		); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

// FetchUnpublished returns up to limit queued envelopes, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]events.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

// MarkPublished stamps the given envelopes as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []domain.EventID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_outbox SET published_at = $1
		WHERE id = ANY($2::uuid[]) AND published_at IS NULL
	`, at, pq.Array(raw))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// ListByName returns every queued or delivered envelope for name.
func (s *Store) ListByName(ctx context.Context, name models.Name) ([]events.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM event_outbox
		WHERE name = $1
		ORDER BY created_at, id
	`, string(name))
	if err != nil {
		return nil, fmt.Errorf("query outbox by name: %w", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]events.Envelope, error) {
	var out []events.Envelope
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		var env events.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode outbox entry: %w", err)
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}
