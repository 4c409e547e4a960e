package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends for name records.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Server captures process level configuration. Every field is read from a
// NAMEREG_* environment variable.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	Environment     string        `env:"ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"namereg"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"namereg-api"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	StoreBackend    string        `env:"STORE" envDefault:"memory"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"namereg.db"`

	Policy   PolicyConfig   `envPrefix:"POLICY_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Tracing  TracingConfig  `envPrefix:"OTEL_"`
	Events   EventsConfig   `envPrefix:"EVENTS_"`
}

// PolicyConfig tunes registration rules.
type PolicyConfig struct {
	MinDuration   time.Duration `env:"MIN_DURATION" envDefault:"1s"`
	MaxDuration   time.Duration `env:"MAX_DURATION" envDefault:"0s"`
	MaxNameLength int           `env:"MAX_NAME_LENGTH" envDefault:"64"`
}

// RedisConfig configures the Redis record store.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	MaxTxRetries int           `env:"MAX_TX_RETRIES" envDefault:"16"`
}

// PostgresConfig configures the record store and event outbox.
type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// KafkaConfig configures the outbox relay. The relay only runs when brokers
// are set and the outbox is backed by PostgreSQL.
type KafkaConfig struct {
	Brokers           []string      `env:"BROKERS" envSeparator:","`
	Topic             string        `env:"TOPIC" envDefault:"namereg.events"`
	Partitions        int32         `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"REPLICATION_FACTOR" envDefault:"1"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"100"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"namereg"`
}

// EventsConfig selects synchronous or queued event delivery. LogCapacity
// bounds the in-memory event log used when no PostgreSQL outbox is configured.
type EventsConfig struct {
	Async       bool `env:"ASYNC" envDefault:"false"`
	BufferSize  int  `env:"BUFFER_SIZE" envDefault:"1024"`
	LogCapacity int  `env:"LOG_CAPACITY" envDefault:"10000"`
}

// FromEnv builds a Server config from NAMEREG_* environment variables.
func FromEnv() (Server, error) {
	return parse(env.Options{Prefix: "NAMEREG_"})
}

func parse(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Server) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("NAMEREG_POSTGRES_DSN is required for the postgres store")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("NAMEREG_REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if len(c.Kafka.Brokers) > 0 && c.Postgres.DSN == "" {
		return fmt.Errorf("kafka relay requires NAMEREG_POSTGRES_DSN for the event outbox")
	}
	if c.IsProduction() && c.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("NAMEREG_JWT_SIGNING_KEY must be set in production")
	}
	if c.Policy.MaxDuration > 0 && c.Policy.MaxDuration < c.Policy.MinDuration {
		return fmt.Errorf("policy max duration %s is below min duration %s", c.Policy.MaxDuration, c.Policy.MinDuration)
	}
	return nil
}

func (c Server) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
