// Package events carries registry events from the service to their sinks.
//
// A mutation's events are wrapped in an Envelope and appended to a Store. The
// in-memory store keeps a queryable log; the PostgreSQL store writes an
// outbox that the relay forwards to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	"namereg/pkg/requestcontext"
)

// Envelope is the transport-agnostic form of a registry event.
type Envelope struct {
	ID         domain.EventID   `json:"-"`
	Type       models.EventType `json:"type"`
	Name       models.Name      `json:"name"`
	OccurredAt time.Time        `json:"occurred_at"`
	RequestID  string           `json:"request_id,omitempty"`
	Payload    json.RawMessage  `json:"payload"`
}

type envelopeJSON struct {
	ID string `json:"id"`
	envelopeAlias
}

type envelopeAlias Envelope

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{ID: e.ID.String(), envelopeAlias: envelopeAlias(e)})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := domain.ParseEventID(raw.ID)
	if err != nil {
		return err
	}
	*e = Envelope(raw.envelopeAlias)
	e.ID = id
	return nil
}

// Wrap builds an envelope for ev with a fresh id.
func Wrap(ev models.Event, occurredAt time.Time, requestID string) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s event: %w", ev.Type(), err)
	}
	return Envelope{
		ID:         domain.NewEventID(),
		Type:       ev.Type(),
		Name:       ev.Subject(),
		OccurredAt: occurredAt.UTC(),
		RequestID:  requestID,
		Payload:    payload,
	}, nil
}

// WrapAll wraps evs in order, stamping each envelope with the request time
// and request id found in ctx.
func WrapAll(ctx context.Context, evs ...models.Event) ([]Envelope, error) {
	now := requestcontext.Now(ctx)
	requestID := requestcontext.RequestID(ctx)
	envelopes := make([]Envelope, 0, len(evs))
	for _, ev := range evs {
		env, err := Wrap(ev, now, requestID)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// Decode returns the typed event carried by e.
func (e Envelope) Decode() (models.Event, error) {
	var (
		ev  models.Event
		err error
	)
	switch e.Type {
	case models.EventRegistered:
		var v models.RegisteredEvent
		err = json.Unmarshal(e.Payload, &v)
		ev = v
	case models.EventExtended:
		var v models.ExtendedEvent
		err = json.Unmarshal(e.Payload, &v)
		ev = v
	case models.EventOwnerChanged:
		var v models.OwnerChangedEvent
		err = json.Unmarshal(e.Payload, &v)
		ev = v
	case models.EventResolverChanged:
		var v models.ResolverChangedEvent
		err = json.Unmarshal(e.Payload, &v)
		ev = v
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	return ev, nil
}

// Store persists envelopes.
type Store interface {
	Append(ctx context.Context, envelopes ...Envelope) error
}

// Fanout appends to every store in order and stops at the first failure.
type Fanout []Store

func (f Fanout) Append(ctx context.Context, envelopes ...Envelope) error {
	for _, s := range f {
		if err := s.Append(ctx, envelopes...); err != nil {
			return err
		}
	}
	return nil
}
