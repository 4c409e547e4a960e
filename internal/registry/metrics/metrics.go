package metrics

import (
	"context"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics provides observability for the registry module.
type Metrics struct {
	// Operations by op and outcome
	Operations *prometheus.CounterVec

	// Operation latency by op
	OperationLatency *prometheus.HistogramVec

	// Successful registrations, split by whether an expired record was taken over
	Registrations *prometheus.CounterVec

	// Events that could not be handed to the publisher after commit
	PublishFailures prometheus.Counter
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_registry_operations_total",
			Help: "Registry operations by operation and outcome",
		}, []string{"op", "outcome"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namereg_registry_operation_duration_seconds",
			Help:    "Duration of registry operations including storage",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),

		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_registrations_total",
			Help: "Successful registrations by kind (new or reclaimed)",
		}, []string{"kind"}),

		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "namereg_event_publish_failures_total",
			Help: "Registry events dropped because publishing failed after commit",
		}),
	}
}

// ObserveOperation records one operation's outcome and latency.
func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(op, outcome).Inc()
		m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementRegistrations records a successful registration. reclaimed is true
// when an expired record was overwritten.
func (m *Metrics) IncrementRegistrations(reclaimed bool) {
	if m == nil {
		return
	}
	kind := "new"
	if reclaimed {
		kind = "reclaimed"
	}
	m.Registrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementPublishFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

// RecordCounter reports how many name records a store holds.
type RecordCounter interface {
	Count(ctx context.Context) (int, error)
}

// RegisterRecordGauge exposes the number of stored name records, read from
// counter on every scrape. A failed count is reported as NaN.
func RegisterRecordGauge(reg prometheus.Registerer, counter RecordCounter, timeout time.Duration) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "namereg_name_records",
		Help: "Name records held by the store, expired ones included",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := counter.Count(ctx)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	})
}
