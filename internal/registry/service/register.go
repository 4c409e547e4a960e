package service

import (
	"context"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Register claims name for d on behalf of owner. The caller need not be the
// owner. An expired record is overwritten; a live one yields NameNotAvailable.
func (s *Service) Register(ctx context.Context, rawName string, d time.Duration, owner, resolver domain.Identity) (receipt *models.Receipt, err error) {
	ctx, op := s.begin(ctx, "register", rawName)
	defer func() { err = s.end(ctx, op, err) }()

	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	if err := s.policy.ValidateDuration(d); err != nil {
		return nil, err
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if !resolver.IsNil() {
		if err := resolver.Validate(); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	var (
		event     models.RegisteredEvent
		reclaimed bool
	)
	stored, err := s.execute(ctx, name, func(current *models.Record) (*models.Record, []models.Event, error) {
		reclaimed = false
		if current != nil {
			if err := current.CanRegister(now); err != nil {
				return nil, nil, err
			}
			reclaimed = true
		}
		rec, err := models.NewRecord(name, owner, resolver, d, now)
		if err != nil {
			return nil, nil, err
		}
		event = models.RegisteredEvent{
			Name:     rec.Name,
			Owner:    rec.Owner,
			Resolver: rec.Resolver,
			Expiry:   rec.Expiry,
		}
		return rec, []models.Event{event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementRegistrations(reclaimed)
	s.logAudit(ctx, event.Type(),
		"name", string(name),
		"owner", owner.String(),
		"caller", requestcontext.Caller(ctx).String(),
		"expiry", stored.Expiry.Unix(),
		"reclaimed", reclaimed,
	)
	evs := []models.Event{event}
	s.publish(ctx, evs)
	return &models.Receipt{Record: stored, Events: evs}, nil
}
