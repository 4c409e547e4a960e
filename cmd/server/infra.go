package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"namereg/internal/events"
	"namereg/internal/events/relay"
	eventmemory "namereg/internal/events/store/memory"
	eventpostgres "namereg/internal/events/store/postgres"
	httpapi "namereg/internal/http"
	"namereg/internal/platform/config"
	"namereg/internal/platform/kafka"
	"namereg/internal/platform/postgres"
	platformredis "namereg/internal/platform/redis"
	"namereg/internal/registry/handler"
	registrymetrics "namereg/internal/registry/metrics"
	"namereg/internal/registry/service"
	"namereg/internal/registry/store/record"
)

// recordStore is what every record backend provides.
type recordStore interface {
	service.Store
	registrymetrics.RecordCounter
}

// infra holds the opened backends and how to release them.
type infra struct {
	records recordStore
	db      *sql.DB
	outbox  *eventpostgres.Store
	relay   *relay.Relay
	health  map[string]httpapi.HealthCheck
	closers []func() error

	// stagesEvents is set when the record store writes events to the outbox
	// in its own transactions.
	stagesEvents bool
}

func (i *infra) close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		errs = append(errs, i.closers[n]())
	}
	return errors.Join(errs...)
}

// openInfra connects the configured record store, the event outbox and the
// Kafka relay. On error everything opened so far is closed.
func openInfra(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *infra, err error) {
	in := &infra{health: map[string]httpapi.HealthCheck{}}
	defer func() {
		if err != nil {
			_ = in.close()
		}
	}()

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.db = db
		in.closers = append(in.closers, db.Close)
		in.health["postgres"] = db.PingContext

		in.outbox = eventpostgres.New(db)
		if err := in.outbox.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate event outbox: %w", err)
		}
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		in.records = record.NewInMemory()
	case config.BackendPostgres:
		store := record.NewPostgres(in.db, record.WithOutbox(in.outbox))
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate record store: %w", err)
		}
		in.records = store
		in.stagesEvents = true
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, client.Close)
		in.health["redis"] = client.Health
		in.records = record.NewRedis(client.Client, record.WithMaxTxRetries(cfg.Redis.MaxTxRetries))
	case config.BackendSQLite:
		store, err := record.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, store.Close)
		in.records = store
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if len(cfg.Kafka.Brokers) > 0 && in.outbox != nil {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, closeKafka(producer))
		if err := kafka.Ping(ctx, producer); err != nil {
			return nil, err
		}
		err = relay.EnsureTopic(ctx, kafka.Admin(producer), cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor)
		if err != nil {
			return nil, err
		}
		in.health["kafka"] = func(ctx context.Context) error { return kafka.Ping(ctx, producer) }
		in.relay = relay.New(in.outbox, producer, cfg.Kafka.Topic,
			relay.WithBatchSize(cfg.Kafka.BatchSize),
			relay.WithPollInterval(cfg.Kafka.PollInterval),
			relay.WithLogger(logger),
		)
	}
	return in, nil
}

// eventWiring says where published events go and which log serves the
// events route.
type eventWiring struct {
	log   handler.EventLog
	sinks events.Fanout
}

// eventWiring picks the event log and the publisher's sinks. With PostgreSQL
// the outbox is both: it is durable and read back by name. When the record
// store stages events itself nothing is left for the publisher. Without
// PostgreSQL a bounded in-memory log stands in.
func (i *infra) eventWiring(memoryCapacity int) eventWiring {
	if i.outbox == nil {
		log := eventmemory.NewInMemoryStore(eventmemory.WithCapacity(memoryCapacity))
		return eventWiring{log: log, sinks: events.Fanout{log}}
	}
	w := eventWiring{log: i.outbox}
	if !i.stagesEvents {
		w.sinks = events.Fanout{i.outbox}
	}
	return w
}

func closeKafka(client *kgo.Client) func() error {
	return func() error {
		client.Close()
		return nil
	}
}
