// Package registry wires the name registry module: service, HTTP handler and
// their collaborators.
package registry

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"namereg/internal/registry/handler"
	"namereg/internal/registry/metrics"
	"namereg/internal/registry/models"
	"namereg/internal/registry/service"
	authmw "namereg/pkg/platform/middleware/auth"
)

// Dependencies are the collaborators of the registry module. Store and
// JWTValidator are required.
type Dependencies struct {
	Store        service.Store
	JWTValidator authmw.JWTValidator
	Logger       *slog.Logger
	Policy       models.Policy
	Metrics      *metrics.Metrics
	Publisher    service.EventPublisher
	EventLog     handler.EventLog
	AuthFailures authmw.FailureCounter
}

// Module is the assembled registry.
type Module struct {
	Service *service.Service
	Handler *handler.Handler
}

func New(deps Dependencies) *Module {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := deps.Policy
	if policy == (models.Policy{}) {
		policy = models.DefaultPolicy()
	}

	svcOpts := []service.Option{
		service.WithLogger(logger),
		service.WithPolicy(policy),
	}
	if deps.Metrics != nil {
		svcOpts = append(svcOpts, service.WithMetrics(deps.Metrics))
	}
	if deps.Publisher != nil {
		svcOpts = append(svcOpts, service.WithEventPublisher(deps.Publisher))
	}
	svc := service.New(deps.Store, svcOpts...)

	var handlerOpts []handler.Option
	if deps.EventLog != nil {
		handlerOpts = append(handlerOpts, handler.WithEventLog(deps.EventLog))
	}
	if deps.AuthFailures != nil {
		handlerOpts = append(handlerOpts, handler.WithAuthOptions(authmw.WithFailureCounter(deps.AuthFailures)))
	}

	return &Module{
		Service: svc,
		Handler: handler.New(svc, deps.JWTValidator, logger, handlerOpts...),
	}
}

// Register mounts the registry routes.
func (m *Module) Register(r chi.Router) {
	m.Handler.Register(r)
}
