// Package handler exposes the registry over HTTP.
//
// Queries are public. Mutations run behind RequireAuth, which places the
// caller identity from the bearer token in the request context where the
// service reads it.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/events"
	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/httputil"
	authmw "namereg/pkg/platform/middleware/auth"
	"namereg/pkg/requestcontext"
)

const maxBodyBytes = 1 << 16

// Service is the registry as seen by the transport.
type Service interface {
	Register(ctx context.Context, rawName string, d time.Duration, owner, resolver domain.Identity) (*models.Receipt, error)
	Extend(ctx context.Context, rawName string, d time.Duration) (*models.Receipt, error)
	SetOwner(ctx context.Context, rawName string, newOwner domain.Identity) (*models.Receipt, error)
	SetResolver(ctx context.Context, rawName string, newResolver domain.Identity) (*models.Receipt, error)
	Record(ctx context.Context, rawName string) (*models.Record, error)
	Expiry(ctx context.Context, rawName string) (time.Time, error)
	Owner(ctx context.Context, rawName string) (domain.Identity, error)
	Resolver(ctx context.Context, rawName string) (domain.Identity, error)
	ParseName(rawName string) (models.Name, error)
}

// EventLog answers per-name event history.
type EventLog interface {
	ListByName(ctx context.Context, name models.Name) ([]events.Envelope, error)
}

// Handler handles the /names endpoints.
type Handler struct {
	registry     Service
	eventLog     EventLog
	logger       *slog.Logger
	jwtValidator authmw.JWTValidator
	authOpts     []authmw.Option
}

type Option func(*Handler)

// WithEventLog enables GET /names/{name}/events.
func WithEventLog(log EventLog) Option {
	return func(h *Handler) { h.eventLog = log }
}

func WithAuthOptions(opts ...authmw.Option) Option {
	return func(h *Handler) { h.authOpts = append(h.authOpts, opts...) }
}

// New creates a registry Handler.
func New(registry Service, jwtValidator authmw.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry:     registry,
		jwtValidator: jwtValidator,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/names", func(r chi.Router) {
		r.Get("/{name}", h.handleRecord)
		r.Get("/{name}/expiry", h.handleExpiry)
		r.Get("/{name}/owner", h.handleOwner)
		r.Get("/{name}/resolver", h.handleResolver)
		if h.eventLog != nil {
			r.Get("/{name}/events", h.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(h.jwtValidator, h.logger, h.authOpts...))
			r.Post("/", h.handleRegister)
			r.Post("/{name}/extend", h.handleExtend)
			r.Put("/{name}/owner", h.handleSetOwner)
			r.Put("/{name}/resolver", h.handleSetResolver)
		})
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := durationFromSeconds(req.DurationSeconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owner, err := parseIdentity(req.Owner, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resolver, err := parseOptionalIdentity(req.Resolver, "resolver")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.registry.Register(ctx, req.Name, d, owner, resolver)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toReceiptResponse(receipt, requestcontext.Now(ctx)))
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ExtendRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := durationFromSeconds(req.DurationSeconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.registry.Extend(ctx, chi.URLParam(r, "name"), d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt, requestcontext.Now(ctx)))
}

func (h *Handler) handleSetOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetOwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner, err := parseIdentity(req.Owner, "owner")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.registry.SetOwner(ctx, chi.URLParam(r, "name"), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt, requestcontext.Now(ctx)))
}

func (h *Handler) handleSetResolver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetResolverRequest
	if !h.decode(w, r, &req) {
		return
	}
	resolver, err := parseOptionalIdentity(req.Resolver, "resolver")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.registry.SetResolver(ctx, chi.URLParam(r, "name"), resolver)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt, requestcontext.Now(ctx)))
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.registry.Record(ctx, chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, requestcontext.Now(ctx)))
}

func (h *Handler) handleExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	expiry, err := h.registry.Expiry(ctx, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toExpiryResponse(name, expiry, requestcontext.Now(ctx)))
}

func (h *Handler) handleOwner(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	owner, err := h.registry.Owner(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(name, owner))
}

func (h *Handler) handleResolver(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resolver, err := h.registry.Resolver(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(name, resolver))
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	name, err := h.registry.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	envelopes, err := h.eventLog.ListByName(r.Context(), name)
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	if envelopes == nil {
		envelopes = []events.Envelope{}
	}
	httputil.WriteJSON(w, http.StatusOK, EventLogResponse{Name: string(name), Events: envelopes})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError reports err with the registry failure kind, if any, as reason.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var kind models.Kind
	reason := ""
	if errors.As(err, &kind) {
		reason = string(kind)
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registry request failed",
			"request_id", requestcontext.RequestID(ctx),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	httputil.WriteErrorWithReason(w, err, reason)
}

// durationFromSeconds converts a wire duration. Values that cannot be
// represented as a time.Duration are rejected as InvalidDuration; range and
// sign checks stay with the registry policy.
func durationFromSeconds(secs int64) (time.Duration, error) {
	if secs > math.MaxInt64/int64(time.Second) {
		return 0, dErrors.Wrap(models.ErrInvalidDuration, dErrors.CodeValidation, "duration is too large")
	}
	return time.Duration(secs) * time.Second, nil
}

func parseIdentity(raw, field string) (domain.Identity, error) {
	ident, err := domain.ParseIdentity(raw)
	if err != nil {
		return domain.Identity{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+field)
	}
	return ident, nil
}

func parseOptionalIdentity(raw, field string) (domain.Identity, error) {
	if raw == "" {
		return domain.Identity{}, nil
	}
	return parseIdentity(raw, field)
}
