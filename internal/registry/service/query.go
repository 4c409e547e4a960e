package service

import (
	"context"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
)

// Record returns the stored record for name, expired or not.
func (s *Service) Record(ctx context.Context, rawName string) (*models.Record, error) {
	return s.lookup(ctx, "record", rawName)
}

// Expiry returns the stored expiry. Expired records still answer.
func (s *Service) Expiry(ctx context.Context, rawName string) (time.Time, error) {
	rec, err := s.lookup(ctx, "expiry", rawName)
	if err != nil {
		return time.Time{}, err
	}
	return rec.Expiry, nil
}

// Owner returns the stored owner regardless of expiry.
func (s *Service) Owner(ctx context.Context, rawName string) (domain.Identity, error) {
	rec, err := s.lookup(ctx, "owner", rawName)
	if err != nil {
		return domain.Identity{}, err
	}
	return rec.Owner, nil
}

// Resolver returns the stored resolver regardless of expiry.
func (s *Service) Resolver(ctx context.Context, rawName string) (domain.Identity, error) {
	rec, err := s.lookup(ctx, "resolver", rawName)
	if err != nil {
		return domain.Identity{}, err
	}
	return rec.Resolver, nil
}

func (s *Service) lookup(ctx context.Context, opName, rawName string) (rec *models.Record, err error) {
	ctx, op := s.begin(ctx, opName, rawName)
	defer func() { err = s.end(ctx, op, err) }()

	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	return s.store.FindByName(ctx, name)
}
