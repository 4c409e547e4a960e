package service

import (
	"context"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	"namereg/pkg/requestcontext"
)

// Extend adds d to the expiry of a live name owned by the caller.
// Checks run in order: duration, registration, ownership, expiry, overflow.
func (s *Service) Extend(ctx context.Context, rawName string, d time.Duration) (receipt *models.Receipt, err error) {
	ctx, op := s.begin(ctx, "extend", rawName)
	defer func() { err = s.end(ctx, op, err) }()

	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	if err := s.policy.ValidateDuration(d); err != nil {
		return nil, err
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)
	var event models.ExtendedEvent
	stored, err := s.execute(ctx, name, func(current *models.Record) (*models.Record, []models.Event, error) {
		if current == nil {
			return nil, nil, models.ErrNameNotRegistered
		}
		if err := current.CanExtend(caller, d, now); err != nil {
			return nil, nil, err
		}
		event = current.ApplyExtension(d, now)
		return current, []models.Event{event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, event.Type(),
		"name", string(name),
		"caller", caller.String(),
		"duration_seconds", int64(d/time.Second),
		"expiry", stored.Expiry.Unix(),
	)
	evs := []models.Event{event}
	s.publish(ctx, evs)
	return &models.Receipt{Record: stored, Events: evs}, nil
}

// SetOwner transfers a live name from the caller to newOwner. Resolver and
// expiry are untouched.
func (s *Service) SetOwner(ctx context.Context, rawName string, newOwner domain.Identity) (receipt *models.Receipt, err error) {
	ctx, op := s.begin(ctx, "set_owner", rawName)
	defer func() { err = s.end(ctx, op, err) }()

	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	if err := newOwner.Validate(); err != nil {
		return nil, err
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)
	var event models.OwnerChangedEvent
	stored, err := s.execute(ctx, name, func(current *models.Record) (*models.Record, []models.Event, error) {
		if current == nil {
			return nil, nil, models.ErrNameNotRegistered
		}
		if err := current.CanManage(caller, now); err != nil {
			return nil, nil, err
		}
		event = current.ApplyOwnerChange(newOwner, now)
		return current, []models.Event{event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, event.Type(),
		"name", string(name),
		"previous_owner", event.PreviousOwner.String(),
		"new_owner", event.NewOwner.String(),
	)
	evs := []models.Event{event}
	s.publish(ctx, evs)
	return &models.Receipt{Record: stored, Events: evs}, nil
}

// SetResolver replaces the resolver of a live name owned by the caller. The
// zero identity clears it.
func (s *Service) SetResolver(ctx context.Context, rawName string, newResolver domain.Identity) (receipt *models.Receipt, err error) {
	ctx, op := s.begin(ctx, "set_resolver", rawName)
	defer func() { err = s.end(ctx, op, err) }()

	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	if !newResolver.IsNil() {
		if err := newResolver.Validate(); err != nil {
			return nil, err
		}
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)
	var event models.ResolverChangedEvent
	stored, err := s.execute(ctx, name, func(current *models.Record) (*models.Record, []models.Event, error) {
		if current == nil {
			return nil, nil, models.ErrNameNotRegistered
		}
		if err := current.CanManage(caller, now); err != nil {
			return nil, nil, err
		}
		event = current.ApplyResolverChange(newResolver, now)
		return current, []models.Event{event}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, event.Type(),
		"name", string(name),
		"previous_resolver", event.PreviousResolver.String(),
		"new_resolver", event.NewResolver.String(),
	)
	evs := []models.Event{event}
	s.publish(ctx, evs)
	return &models.Receipt{Record: stored, Events: evs}, nil
}
