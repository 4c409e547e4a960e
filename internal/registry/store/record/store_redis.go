package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"namereg/internal/registry/models"
	"namereg/pkg/platform/sentinel"
)

const (
	recordKeyPrefix = "namereg:record:"
	recordCountKey  = "namereg:records"

	defaultMaxTxRetries = 16
)

// RedisStore keeps each record as a JSON string under namereg:record:<name>.
// Execute uses WATCH/MULTI so a concurrent writer to the same name aborts the
// transaction, which is then retried from a fresh read.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithMaxTxRetries bounds optimistic transaction retries.
func WithMaxTxRetries(n int) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, maxRetries: defaultMaxTxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func recordKey(name models.Name) string {
	return recordKeyPrefix + string(name)
}

func (s *RedisStore) FindByName(ctx context.Context, name models.Name) (*models.Record, error) {
	r, err := s.get(ctx, s.client, recordKey(name))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, sentinel.ErrNotFound
	}
	return r, nil
}

func (s *RedisStore) Execute(ctx context.Context, name models.Name, fn MutateFunc) (*models.Record, error) {
	key := recordKey(name)
	var result *models.Record

	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}
		payload, err := json.Marshal(toRow(next))
		if err != nil {
			return fmt.Errorf("encode name record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, recordCountKey, string(name))
			return nil
		})
		if err != nil {
			return err
		}
		result = next.Clone()
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("name record %q: too much contention: %w", name, sentinel.ErrUnavailable)
}

// Count returns the number of records ever registered.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, recordCountKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count name records: %w", err)
	}
	return int(n), nil
}

// get returns (nil, nil) when the key does not exist.
func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, key string) (*models.Record, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get name record: %w", err)
	}
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode name record: %w", err)
	}
	return r.toRecord()
}
