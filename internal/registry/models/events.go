package models

import (
	"encoding/json"
	"time"

	"namereg/pkg/domain"
)

// EventType names a registry event.
type EventType string

const (
	EventRegistered      EventType = "registered"
	EventExtended        EventType = "extended"
	EventOwnerChanged    EventType = "owner_changed"
	EventResolverChanged EventType = "resolver_changed"
)

// Event is emitted by a successful registry mutation.
type Event interface {
	Type() EventType
	Subject() Name
}

// RegisteredEvent is emitted by register.
type RegisteredEvent struct {
	Name     Name            `json:"name"`
	Owner    domain.Identity `json:"owner"`
	Resolver domain.Identity `json:"resolver"`
	Expiry   time.Time       `json:"expiry"`
}

func (RegisteredEvent) Type() EventType { return EventRegistered }
func (e RegisteredEvent) Subject() Name { return e.Name }

// ExtendedEvent is emitted by extend.
type ExtendedEvent struct {
	Name      Name
	Duration  time.Duration
	NewExpiry time.Time
}

func (ExtendedEvent) Type() EventType { return EventExtended }
func (e ExtendedEvent) Subject() Name { return e.Name }

type extendedEventJSON struct {
	Name            Name      `json:"name"`
	DurationSeconds int64     `json:"duration_seconds"`
	NewExpiry       time.Time `json:"new_expiry"`
}

// MarshalJSON encodes the duration in whole seconds.
func (e ExtendedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(extendedEventJSON{
		Name:            e.Name,
		DurationSeconds: int64(e.Duration / time.Second),
		NewExpiry:       e.NewExpiry,
	})
}

func (e *ExtendedEvent) UnmarshalJSON(data []byte) error {
	var raw extendedEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ExtendedEvent{
		Name:      raw.Name,
		Duration:  time.Duration(raw.DurationSeconds) * time.Second,
		NewExpiry: raw.NewExpiry,
	}
	return nil
}

// OwnerChangedEvent is emitted by set_owner.
type OwnerChangedEvent struct {
	Name          Name            `json:"name"`
	PreviousOwner domain.Identity `json:"previous_owner"`
	NewOwner      domain.Identity `json:"new_owner"`
}

func (OwnerChangedEvent) Type() EventType { return EventOwnerChanged }
func (e OwnerChangedEvent) Subject() Name { return e.Name }

// ResolverChangedEvent is emitted by set_resolver.
type ResolverChangedEvent struct {
	Name             Name            `json:"name"`
	PreviousResolver domain.Identity `json:"previous_resolver"`
	NewResolver      domain.Identity `json:"new_resolver"`
}

func (ResolverChangedEvent) Type() EventType { return EventResolverChanged }
func (e ResolverChangedEvent) Subject() Name { return e.Name }

// Receipt is what a mutation returns: the record as persisted and the events
// the mutation produced, in order.
type Receipt struct {
	Record *Record
	Events []Event
}
