// Package record persists name records.
//
// Every backend implements the same two operations: FindByName for reads and
// Execute for an isolated read-modify-write of a single name. Stores are pure
// I/O; all registry rules live in the models and the service.
package record

import (
	"fmt"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
)

// MutateFunc receives a copy of the current record (nil if the name has never
// been registered) and returns the record to persist. Returning an error
// aborts the transaction without writing; returning a nil record writes nothing.
type MutateFunc func(current *models.Record) (*models.Record, error)

// EventMutateFunc is a MutateFunc that also returns the events its change
// produced. Stores that support it commit those events with the record.
type EventMutateFunc func(current *models.Record) (*models.Record, []models.Event, error)

// row is the flat storage shape shared by the SQL and Redis backends.
type row struct {
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	Resolver     string `json:"resolver"`
	Expiry       int64  `json:"expiry"`
	RegisteredAt int64  `json:"registered_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func toRow(r *models.Record) row {
	return row{
		Name:         string(r.Name),
		Owner:        r.Owner.String(),
		Resolver:     r.Resolver.String(),
		Expiry:       r.Expiry.Unix(),
		RegisteredAt: r.RegisteredAt.Unix(),
		UpdatedAt:    r.UpdatedAt.Unix(),
	}
}

func (r row) toRecord() (*models.Record, error) {
	owner, err := parseStoredIdentity(r.Owner)
	if err != nil {
		return nil, fmt.Errorf("decode owner of %q: %w", r.Name, err)
	}
	resolver, err := parseStoredIdentity(r.Resolver)
	if err != nil {
		return nil, fmt.Errorf("decode resolver of %q: %w", r.Name, err)
	}
	return &models.Record{
		Name:         models.Name(r.Name),
		Owner:        owner,
		Resolver:     resolver,
		Expiry:       time.Unix(r.Expiry, 0).UTC(),
		RegisteredAt: time.Unix(r.RegisteredAt, 0).UTC(),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0).UTC(),
	}, nil
}

func parseStoredIdentity(s string) (domain.Identity, error) {
	if s == "" {
		return domain.Identity{}, nil
	}
	return domain.ParseIdentity(s)
}
