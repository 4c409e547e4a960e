package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"namereg/internal/events"
	eventmemory "namereg/internal/events/store/memory"
	jwttoken "namereg/internal/jwt_token"
	"namereg/internal/platform/metrics"
	"namereg/internal/registry"
	"namereg/internal/registry/handler"
	registrymetrics "namereg/internal/registry/metrics"
	"namereg/internal/registry/models"
	"namereg/internal/registry/store/record"
	"namereg/pkg/domain"
	"namereg/pkg/platform/httputil"
)

var (
	alice = domain.NewAddress("0xa11ce")
	bob   = domain.NewAddress("0xb0b")
	carol = domain.NewAddress("0xca201")
)

// RouterSuite drives the real stack: JWT auth, registry service, in-memory
// store and event log.
type RouterSuite struct {
	suite.Suite
	server *httptest.Server
	tokens *jwttoken.JWTService
	log    *eventmemory.InMemoryStore
	reg    *prometheus.Registry
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tokens = jwttoken.NewJWTService("router-test-key", "namereg", "namereg-api")
	s.log = eventmemory.NewInMemoryStore()
	s.reg = prometheus.NewRegistry()
	httpMetrics := metrics.New(s.reg)

	module := registry.New(registry.Dependencies{
		Store:        record.NewInMemory(),
		JWTValidator: jwttoken.NewJWTServiceAdapter(s.tokens),
		Logger:       logger,
		Metrics:      registrymetrics.New(s.reg),
		Publisher:    events.NewPublisher(s.log),
		EventLog:     s.log,
		AuthFailures: httpMetrics,
	})

	router := NewRouter(Config{
		Logger:         logger,
		Metrics:        httpMetrics,
		Gatherer:       s.reg,
		RequestTimeout: 5 * time.Second,
		HealthChecks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
		Modules: []RouteRegistrar{module},
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) call(method, path string, caller domain.Identity, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if !caller.IsNil() {
		token, err := s.tokens.GenerateAccessToken(caller, time.Hour)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, raw
}

func (s *RouterSuite) reason(raw []byte) string {
	var body httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(raw, &body))
	return body.Reason
}

func (s *RouterSuite) TestRegisterTransferAndQuery() {
	resp, raw := s.call(http.MethodPost, "/names", alice, handler.RegisterRequest{
		Name: "alice", DurationSeconds: 3600, Owner: alice.String(),
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(raw))
	s.Equal("application/json", resp.Header.Get("Content-Type"))
	s.NotEmpty(resp.Header.Get("X-Request-ID"))

	resp, raw = s.call(http.MethodPost, "/names", bob, handler.RegisterRequest{
		Name: "alice", DurationSeconds: 3600, Owner: bob.String(),
	})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal(string(models.ErrNameNotAvailable), s.reason(raw))

	resp, raw = s.call(http.MethodPost, "/names/alice/extend", bob, handler.ExtendRequest{DurationSeconds: 60})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal(string(models.ErrSenderNotOwner), s.reason(raw))

	resp, _ = s.call(http.MethodPut, "/names/alice/owner", alice, handler.SetOwnerRequest{Owner: carol.String()})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, raw = s.call(http.MethodGet, "/names/alice/owner", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var owner handler.IdentityResponse
	s.Require().NoError(json.Unmarshal(raw, &owner))
	s.Equal(carol.String(), owner.Identity)

	resp, raw = s.call(http.MethodPut, "/names/alice/resolver", alice, handler.SetResolverRequest{Resolver: "contract:r1"})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal(string(models.ErrSenderNotOwner), s.reason(raw))

	resp, raw = s.call(http.MethodGet, "/names/alice/events", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var log handler.EventLogResponse
	s.Require().NoError(json.Unmarshal(raw, &log))
	s.Require().Len(log.Events, 2)
	s.Equal(models.EventRegistered, log.Events[0].Type)
	s.Equal(models.EventOwnerChanged, log.Events[1].Type)
	s.NotEmpty(log.Events[0].RequestID)
}

func (s *RouterSuite) TestEventsRouteMatchesRecordRouteForPaddedNames() {
	resp, raw := s.call(http.MethodPost, "/names", alice, handler.RegisterRequest{
		Name: "alice", DurationSeconds: 3600, Owner: alice.String(),
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(raw))

	resp, _ = s.call(http.MethodGet, "/names/alice%20", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, raw = s.call(http.MethodGet, "/names/alice%20/events", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var log handler.EventLogResponse
	s.Require().NoError(json.Unmarshal(raw, &log))
	s.Equal("alice", log.Name)
	s.Len(log.Events, 1)
}

func (s *RouterSuite) TestUnknownNameIsNotFound() {
	resp, raw := s.call(http.MethodGet, "/names/nobody/expiry", domain.Identity{}, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal(string(models.ErrNameNotRegistered), s.reason(raw))
}

func (s *RouterSuite) TestMutationsRequireToken() {
	resp, _ := s.call(http.MethodPost, "/names", domain.Identity{}, handler.RegisterRequest{
		Name: "alice", DurationSeconds: 60, Owner: alice.String(),
	})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.call(http.MethodGet, "/metrics", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	n, err := testutil.GatherAndCount(s.reg, "namereg_http_auth_failures_total", "namereg_http_requests_total")
	s.Require().NoError(err)
	s.GreaterOrEqual(n, 2)
}

func (s *RouterSuite) TestHealth() {
	resp, raw := s.call(http.MethodGet, "/healthz", domain.Identity{}, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"status":"ok","checks":{"store":"ok"}}`, string(raw))
}

func TestHealthReportsFailingChecks(t *testing.T) {
	router := NewRouter(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}
