// Package kafka builds franz-go clients for the event relay.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/platform/config"
)

// NewProducer returns a client tuned for keyed, ordered, idempotent produce.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.ProducerLinger(0),
	}
	if logger != nil {
		opts = append(opts, kgo.WithLogger(slogAdapter{logger: logger}))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Ping checks that at least one broker is reachable.
func Ping(ctx context.Context, client *kgo.Client) error {
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping: %w", err)
	}
	return nil
}

// Admin wraps client for topic management.
func Admin(client *kgo.Client) *kadm.Client {
	return kadm.NewClient(client)
}

// slogAdapter routes franz-go client logs to slog. Only warnings and errors
// are emitted.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Level() kgo.LogLevel {
	return kgo.LogLevelWarn
}

func (a slogAdapter) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	switch level {
	case kgo.LogLevelError:
		a.logger.Error(msg, keyvals...)
	case kgo.LogLevelWarn:
		a.logger.Warn(msg, keyvals...)
	default:
		a.logger.Debug(msg, keyvals...)
	}
}
