package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultMinDuration   = time.Second
	DefaultMaxNameLength = 64
)

// maxExpiry bounds stored expiries so every backend can represent them
// (end of year 9999 UTC).
var maxExpiry = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Policy holds the tunable registration rules. Charset and case rules for
// names are enforced by callers, not here.
type Policy struct {
	// MinDuration is the shortest accepted register/extend duration.
	MinDuration time.Duration
	// MaxDuration caps a single register/extend call. Zero means no cap.
	MaxDuration time.Duration
	// MaxNameLength caps the name length in bytes.
	MaxNameLength int
}

// DefaultPolicy returns the rules used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinDuration:   DefaultMinDuration,
		MaxNameLength: DefaultMaxNameLength,
	}
}

// ValidateDuration rejects non-positive durations, fractional seconds, and
// durations outside the configured bounds.
func (p Policy) ValidateDuration(d time.Duration) error {
	if d <= 0 || d%time.Second != 0 {
		return ErrInvalidDuration
	}
	if d < p.MinDuration {
		return ErrInvalidDuration
	}
	if p.MaxDuration > 0 && d > p.MaxDuration {
		return ErrInvalidDuration
	}
	return nil
}

// ParseName trims surrounding whitespace and enforces the length bound.
func (p Policy) ParseName(raw string) (Name, error) {
	name := strings.TrimSpace(raw)
	if name == "" || !utf8.ValidString(name) {
		return "", ErrInvalidName
	}
	limit := p.MaxNameLength
	if limit <= 0 {
		limit = DefaultMaxNameLength
	}
	if len(name) > limit {
		return "", ErrInvalidName
	}
	return Name(name), nil
}
