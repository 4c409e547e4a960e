package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"namereg/internal/events"
	httpapi "namereg/internal/http"
	jwttoken "namereg/internal/jwt_token"
	"namereg/internal/platform/config"
	"namereg/internal/platform/httpserver"
	"namereg/internal/platform/logger"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/tracing"
	"namereg/internal/registry"
	registrymetrics "namereg/internal/registry/metrics"
	"namereg/internal/registry/models"
	"namereg/internal/registry/service"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("namereg exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.close(); err != nil {
			log.Warn("closing backends failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.New(reg)

	registryMetrics := registrymetrics.New(reg)
	registrymetrics.RegisterRecordGauge(reg, in.records, cfg.RequestTimeout)

	wiring := in.eventWiring(cfg.Events.LogCapacity)
	var publisher *events.Publisher
	var eventPublisher service.EventPublisher
	if len(wiring.sinks) > 0 {
		pubOpts := []events.Option{events.WithLogger(log), events.WithFailureCounter(registryMetrics)}
		if cfg.Events.Async {
			pubOpts = append(pubOpts, events.WithAsync(cfg.Events.BufferSize))
		}
		publisher = events.NewPublisher(wiring.sinks, pubOpts...)
		eventPublisher = publisher
	}

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	module := registry.New(registry.Dependencies{
		Store:        in.records,
		JWTValidator: jwttoken.NewJWTServiceAdapter(tokens),
		Logger:       log,
		Policy: models.Policy{
			MinDuration:   cfg.Policy.MinDuration,
			MaxDuration:   cfg.Policy.MaxDuration,
			MaxNameLength: cfg.Policy.MaxNameLength,
		},
		Metrics:      registryMetrics,
		Publisher:    eventPublisher,
		EventLog:     wiring.log,
		AuthFailures: httpMetrics,
	})

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        httpMetrics,
		Gatherer:       reg,
		RequestTimeout: cfg.RequestTimeout,
		HealthChecks:   in.health,
		Modules:        []httpapi.RouteRegistrar{module},
	})
	srv := httpserver.New(cfg.Addr, otelhttp.NewHandler(router, "namereg.http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Requests still in flight during shutdown may publish; the publisher
		// is closed only once the server has stopped serving them.
		if publisher != nil {
			defer func() { _ = publisher.Close() }()
		}
		log.Info("starting namereg", "addr", cfg.Addr, "store", cfg.StoreBackend, "env", cfg.Environment)
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout)
	})
	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}
	if in.relay != nil {
		g.Go(func() error {
			log.Info("starting outbox relay", "topic", cfg.Kafka.Topic)
			return in.relay.Run(gctx)
		})
	}

	return g.Wait()
}
