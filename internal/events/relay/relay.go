// Package relay forwards outbox envelopes to Kafka.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/events"
	"namereg/pkg/domain"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second

	headerEventType = "event_type"
	headerRequestID = "request_id"
)

// Outbox is the queue the relay drains.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]events.Envelope, error)
	MarkPublished(ctx context.Context, ids []domain.EventID, at time.Time) error
}

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay polls the outbox and produces each envelope to a topic keyed by name,
// so all events for one name land on the same partition in order. Delivery is
// at-least-once: envelopes are marked only after the broker acknowledged them.
type Relay struct {
	outbox   Outbox
	producer Producer
	topic    string

	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func New(outbox Outbox, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		producer:  producer,
		topic:     topic,
		batchSize: defaultBatchSize,
		interval:  defaultPollInterval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce produces one batch and returns how many envelopes were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, env := range batch {
		rec, err := r.toRecord(env)
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce %d events: %w", len(records), err)
	}

	ids := make([]domain.EventID, len(batch))
	for i, env := range batch {
		ids[i] = env.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now().UTC()); err != nil {
		return 0, err
	}
	r.logger.DebugContext(ctx, "relayed events", "count", len(batch), "topic", r.topic)
	return len(batch), nil
}

func (r *Relay) toRecord(env events.Envelope) (*kgo.Record, error) {
	value, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", env.ID, err)
	}
	rec := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(env.Name),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(env.Type)},
		},
	}
	if env.RequestID != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerRequestID, Value: []byte(env.RequestID)})
	}
	return rec, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, adm *kadm.Client, topic string, partitions int32, replicationFactor int16) error {
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}
