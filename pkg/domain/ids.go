package domain

import (
	"github.com/google/uuid"

	dErrors "namereg/pkg/domain-errors"
)

// EventID identifies a published registry event.
type EventID uuid.UUID

// NewEventID returns a random event id.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// ParseEventID parses and validates an event id at a trust boundary.
func ParseEventID(s string) (EventID, error) {
	if s == "" {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid event id")
	}
	if parsed == uuid.Nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id cannot be nil")
	}
	return EventID(parsed), nil
}

func (id EventID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the nil UUID.
func (id EventID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}
