// Package memory keeps the registry event log in process memory. It is the
// event log of deployments without PostgreSQL; history does not survive a
// restart.
package memory

import (
	"context"
	"sync"

	"namereg/internal/events"
	"namereg/internal/registry/models"
)

// DefaultCapacity bounds the log when no capacity is configured.
const DefaultCapacity = 10_000

// InMemoryStore holds the most recent envelopes up to its capacity. Once
// full, each append evicts the oldest envelope.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	byName   map[models.Name][]events.Envelope
	all      []events.Envelope
}

type Option func(*InMemoryStore)

// WithCapacity sets how many envelopes the log retains.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		capacity: DefaultCapacity,
		byName:   make(map[models.Name][]events.Envelope),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, envelopes ...events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range envelopes {
		s.byName[env.Name] = append(s.byName[env.Name], env)
		s.all = append(s.all, env)
	}
	for len(s.all) > s.capacity {
		s.evictOldest()
	}
	return nil
}

// evictOldest drops the first envelope of the log. Per-name lists share the
// log's order, so it is also the first envelope of its name.
func (s *InMemoryStore) evictOldest() {
	oldest := s.all[0]
	s.all[0] = events.Envelope{}
	s.all = s.all[1:]

	rest := s.byName[oldest.Name][1:]
	if len(rest) == 0 {
		delete(s.byName, oldest.Name)
		return
	}
	s.byName[oldest.Name] = rest
}

// ListByName returns the retained events for name in emission order.
func (s *InMemoryStore) ListByName(_ context.Context, name models.Name) ([]events.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Envelope{}, s.byName[name]...), nil
}
