package models

import (
	"time"

	"namereg/pkg/domain"
)

// Record is the aggregate root for one registered name.
//
// Invariants:
//   - A record exists iff the name was registered at least once
//   - Expiry only moves forward, except when an expired name is registered again
//   - Only the owner of a non-expired record may extend it or change its owner or resolver
//   - A record is expired when Expiry <= now; expiry is never stored as a flag
//
// Expired records are kept. They stay queryable and are overwritten by the next
// registration.
type Record struct {
	Name         Name            `json:"name"`
	Owner        domain.Identity `json:"owner"`
	Resolver     domain.Identity `json:"resolver"`
	Expiry       time.Time       `json:"expiry"`
	RegisteredAt time.Time       `json:"registered_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewRecord builds the record created by a successful registration.
// now is truncated to whole seconds; d must already satisfy the policy.
func NewRecord(name Name, owner, resolver domain.Identity, d time.Duration, now time.Time) (*Record, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	now = Seconds(now)
	expiry, err := addDuration(now, d)
	if err != nil {
		return nil, err
	}
	return &Record{
		Name:         name,
		Owner:        owner,
		Resolver:     resolver,
		Expiry:       expiry,
		RegisteredAt: now,
		UpdatedAt:    now,
	}, nil
}

// IsExpired reports whether the record's validity has lapsed at now.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.Expiry.After(now)
}

// CanRegister checks whether the name may be claimed again.
func (r *Record) CanRegister(now time.Time) error {
	if !r.IsExpired(now) {
		return ErrNameNotAvailable
	}
	return nil
}

// CanManage checks that caller may mutate the record at now.
// Ownership is checked before expiry so that strangers learn nothing more
// than "not yours".
func (r *Record) CanManage(caller domain.Identity, now time.Time) error {
	if caller.IsNil() || caller != r.Owner {
		return ErrSenderNotOwner
	}
	if r.IsExpired(now) {
		return ErrNameExpired
	}
	return nil
}

// CanExtend validates an extension by caller at now.
func (r *Record) CanExtend(caller domain.Identity, d time.Duration, now time.Time) error {
	if err := r.CanManage(caller, now); err != nil {
		return err
	}
	if _, err := addDuration(r.Expiry, d); err != nil {
		return err
	}
	return nil
}

// ApplyExtension adds d to the current expiry. Call CanExtend first.
func (r *Record) ApplyExtension(d time.Duration, now time.Time) ExtendedEvent {
	r.Expiry = r.Expiry.Add(d)
	r.UpdatedAt = Seconds(now)
	return ExtendedEvent{Name: r.Name, Duration: d, NewExpiry: r.Expiry}
}

// ApplyOwnerChange replaces the owner. Call CanManage first.
func (r *Record) ApplyOwnerChange(newOwner domain.Identity, now time.Time) OwnerChangedEvent {
	previous := r.Owner
	r.Owner = newOwner
	r.UpdatedAt = Seconds(now)
	return OwnerChangedEvent{Name: r.Name, PreviousOwner: previous, NewOwner: newOwner}
}

// ApplyResolverChange replaces the resolver. Call CanManage first.
func (r *Record) ApplyResolverChange(newResolver domain.Identity, now time.Time) ResolverChangedEvent {
	previous := r.Resolver
	r.Resolver = newResolver
	r.UpdatedAt = Seconds(now)
	return ResolverChangedEvent{Name: r.Name, PreviousResolver: previous, NewResolver: newResolver}
}

// Clone returns a copy that can be mutated without affecting r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Seconds truncates t to whole seconds in UTC, the precision records are kept at.
func Seconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

func addDuration(t time.Time, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidDuration
	}
	// Compare in seconds so that huge durations cannot overflow time.Time.
	if t.Unix() > maxExpiry.Unix()-int64(d/time.Second) {
		return time.Time{}, ErrInvalidDuration
	}
	return t.Add(d), nil
}
