package record

import (
	"context"
	"hash/fnv"
	"sync"

	"namereg/internal/registry/models"
	"namereg/pkg/platform/sentinel"
)

// numShards spreads per-name transactions across independent locks so
// unrelated names do not contend.
const numShards = 128

// InMemory keeps records in a map. Execute serializes callbacks per name with
// a sharded mutex; the map itself is guarded by mu.
type InMemory struct {
	shards [numShards]sync.Mutex

	mu      sync.RWMutex
	records map[models.Name]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[models.Name]*models.Record)}
}

func (s *InMemory) FindByName(_ context.Context, name models.Name) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[name]; ok {
		return r.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Execute(ctx context.Context, name models.Name, fn MutateFunc) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := &s.shards[shardFor(name)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current := s.records[name].Clone()
	s.mu.RUnlock()

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	s.mu.Lock()
	s.records[name] = next.Clone()
	s.mu.Unlock()
	return next.Clone(), nil
}

// Count returns the number of records ever registered.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func shardFor(name models.Name) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32() % numShards
}
