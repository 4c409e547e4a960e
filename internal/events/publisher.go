package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"namereg/internal/registry/models"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("event publisher closed")

const defaultBufferSize = 1024

// FailureCounter counts envelope batches that async delivery dropped.
type FailureCounter interface {
	IncrementPublishFailures()
}

// Publisher turns registry events into envelopes and appends them to a Store.
//
// In the default synchronous mode Publish returns the store's error. In async
// mode Publish only enqueues; Run delivers the queue and store failures are
// logged and counted. A full queue makes Publish fail rather than block the
// caller. Run keeps delivering until Close, so callers close the publisher
// once nothing can publish anymore (after the HTTP server has stopped).
type Publisher struct {
	store    Store
	logger   *slog.Logger
	failures FailureCounter

	async bool
	queue chan []Envelope

	mu     sync.RWMutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for async delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithFailureCounter counts batches that async delivery could not store.
func WithFailureCounter(counter FailureCounter) Option {
	return func(p *Publisher) {
		p.failures = counter
	}
}

// WithAsync switches the publisher to queued delivery with the given buffer size.
func WithAsync(buffer int) Option {
	return func(p *Publisher) {
		if buffer <= 0 {
			buffer = defaultBufferSize
		}
		p.async = true
		p.queue = make(chan []Envelope, buffer)
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish wraps evs and hands them to the store. Envelopes are stamped with
// the request time and request id found in ctx.
func (p *Publisher) Publish(ctx context.Context, evs ...models.Event) error {
	if len(evs) == 0 {
		return nil
	}
	envelopes, err := WrapAll(ctx, evs...)
	if err != nil {
		return err
	}

	if !p.async {
		return p.store.Append(ctx, envelopes...)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- envelopes:
		return nil
	default:
		return fmt.Errorf("event queue full (%d batches)", cap(p.queue))
	}
}

// Run delivers the async queue until Close is called. Cancelling ctx does not
// stop it: batches enqueued by requests still in flight during shutdown are
// delivered with a context detached from ctx. For synchronous publishers Run
// just waits for ctx.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.async {
		<-ctx.Done()
		return nil
	}
	deliverCtx := context.WithoutCancel(ctx)
	for batch := range p.queue {
		p.deliver(deliverCtx, batch)
	}
	return nil
}

// Close stops accepting events. Batches already queued are still delivered by
// Run, which returns once the queue is empty.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.async {
		close(p.queue)
	}
	return nil
}

func (p *Publisher) deliver(ctx context.Context, batch []Envelope) {
	if err := p.store.Append(ctx, batch...); err != nil {
		if p.failures != nil {
			p.failures.IncrementPublishFailures()
		}
		p.logger.ErrorContext(ctx, "event delivery failed",
			"events", len(batch),
			"name", batch[0].Name,
			"error", err,
		)
	}
}
