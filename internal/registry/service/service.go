// Package service implements the name registry.
//
// Every mutation runs as one store transaction: the current record is loaded,
// checked and changed inside the store's Execute callback, so a failed check
// writes nothing. Stores implementing EventStore commit the mutation's events
// in that transaction. Events are also returned in the receipt and handed to
// the publisher after the transaction committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"namereg/internal/registry/metrics"
	"namereg/internal/registry/models"
	"namereg/internal/registry/store/record"
	"namereg/pkg/attrs"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

const tracerName = "namereg/internal/registry"

// Store loads and atomically mutates records.
type Store interface {
	FindByName(ctx context.Context, name models.Name) (*models.Record, error)
	Execute(ctx context.Context, name models.Name, fn record.MutateFunc) (*models.Record, error)
}

// EventStore is a Store that commits a mutation's events together with the
// record.
type EventStore interface {
	Store
	ExecuteWithEvents(ctx context.Context, name models.Name, fn record.EventMutateFunc) (*models.Record, error)
}

// EventPublisher receives the events of committed mutations.
type EventPublisher interface {
	Publish(ctx context.Context, evs ...models.Event) error
}

// Service is the registry state machine.
type Service struct {
	store     Store
	policy    models.Policy
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithPolicy replaces the default registration rules.
func WithPolicy(policy models.Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: models.DefaultPolicy(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseName normalises rawName the way every registry operation does.
func (s *Service) ParseName(rawName string) (models.Name, error) {
	name, err := s.policy.ParseName(rawName)
	if err != nil {
		return "", translate(err)
	}
	return name, nil
}

// operation tracks one registry call for tracing and metrics.
type operation struct {
	name  string
	start time.Time
	span  trace.Span
}

func (s *Service) begin(ctx context.Context, op, rawName string) (context.Context, *operation) {
	ctx, span := s.tracer.Start(ctx, "registry."+op,
		trace.WithAttributes(attribute.String("name", rawName)),
	)
	return ctx, &operation{name: op, start: time.Now(), span: span}
}

// end records the outcome of op and returns err translated for callers.
func (s *Service) end(ctx context.Context, op *operation, err error) error {
	defer op.span.End()
	if err == nil {
		s.metrics.ObserveOperation(op.name, metrics.OutcomeOK, time.Since(op.start))
		return nil
	}

	translated := translate(err)
	outcome := metrics.OutcomeRejected
	if dErrors.CodeOf(translated) == dErrors.CodeInternal {
		outcome = metrics.OutcomeError
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "registry operation failed", "op", op.name, "error", err)
		}
	} else {
		var kind models.Kind
		if errors.As(translated, &kind) {
			op.span.SetAttributes(attribute.String("reason", string(kind)))
		}
	}
	s.metrics.ObserveOperation(op.name, outcome, time.Since(op.start))
	return translated
}

// execute runs fn in a store transaction, through ExecuteWithEvents when the
// store supports it.
func (s *Service) execute(ctx context.Context, name models.Name, fn record.EventMutateFunc) (*models.Record, error) {
	if es, ok := s.store.(EventStore); ok {
		return es.ExecuteWithEvents(ctx, name, fn)
	}
	return s.store.Execute(ctx, name, func(current *models.Record) (*models.Record, error) {
		next, _, err := fn(current)
		return next, err
	})
}

// publish hands committed events to the publisher. Failures are logged and
// counted; the mutation has already committed.
func (s *Service) publish(ctx context.Context, evs []models.Event) {
	if s.publisher == nil || len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.metrics.IncrementPublishFailures()
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to publish registry events",
				"name", string(evs[0].Subject()),
				"events", len(evs),
				"error", err,
			)
		}
	}
}

func (s *Service) logAudit(ctx context.Context, event models.EventType, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	trace.SpanFromContext(ctx).AddEvent(string(event), trace.WithAttributes(attrs.ToOtel(attributes)...))
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
}

var kindCodes = map[models.Kind]dErrors.Code{
	models.ErrNameNotRegistered: dErrors.CodeNotFound,
	models.ErrNameNotAvailable:  dErrors.CodeConflict,
	models.ErrSenderNotOwner:    dErrors.CodeForbidden,
	models.ErrInvalidDuration:   dErrors.CodeValidation,
	models.ErrNameExpired:       dErrors.CodeConflict,
	models.ErrInvalidName:       dErrors.CodeValidation,
}

var kindMessages = map[models.Kind]string{
	models.ErrNameNotRegistered: "name is not registered",
	models.ErrNameNotAvailable:  "name is already registered and has not expired",
	models.ErrSenderNotOwner:    "caller is not the owner of this name",
	models.ErrInvalidDuration:   "duration must be a positive whole number of seconds within policy bounds",
	models.ErrNameExpired:       "name has expired; register it again",
	models.ErrInvalidName:       "name is empty or too long",
}

// translate maps store sentinels and registry kinds onto coded domain errors.
// The kind stays in the chain so callers can match it with errors.Is.
func translate(err error) error {
	var kind models.Kind
	switch {
	case errors.As(err, &kind):
		return dErrors.Wrap(kind, kindCodes[kind], kindMessages[kind])
	case errors.Is(err, sentinel.ErrNotFound):
		return translate(models.ErrNameNotRegistered)
	case errors.Is(err, sentinel.ErrConflict):
		return translate(models.ErrNameNotAvailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "registry operation aborted")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "registry operation failed")
}
