package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"namereg/internal/events"
	"namereg/internal/registry/handler/mocks"
	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/httputil"
	authmw "namereg/pkg/platform/middleware/auth"
	"namereg/pkg/platform/middleware/requesttime"
	"namereg/pkg/requestcontext"
	"namereg/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,EventLog

var (
	alice    = domain.NewAddress("0xa11ce")
	bob      = domain.NewAddress("0xb0b")
	resolver = domain.NewContract("resolver-1")
	now      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	year     = 365 * 24 * time.Hour
)

// tokenValidator accepts "token-<identity>" bearer tokens.
type tokenValidator struct{}

func (tokenValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	raw, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return nil, errors.New("bad token")
	}
	caller, err := domain.ParseIdentity(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{Caller: caller, JTI: "jti-" + raw}, nil
}

type HandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	eventLog *mocks.MockEventLog
	router   chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.eventLog = mocks.NewMockEventLog(ctrl)
	s.router = newRouter(New(s.service, tokenValidator{}, discardLogger(), WithEventLog(s.eventLog)))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(requesttime.WithClock(func() time.Time { return now }))
	h.Register(r)
	return r
}

func (s *HandlerSuite) do(method, path string, caller domain.Identity, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if !caller.IsNil() {
		req.Header.Set("Authorization", "Bearer token-"+caller.String())
	}
	return testutil.DoRequest(s.router, req)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func kindError(kind models.Kind, code dErrors.Code) error {
	return dErrors.Wrap(kind, code, "registry says no")
}

func liveRecord(name string) *models.Record {
	return &models.Record{
		Name:         models.Name(name),
		Owner:        alice,
		Resolver:     resolver,
		Expiry:       now.Add(year),
		RegisteredAt: now,
		UpdatedAt:    now,
	}
}

func (s *HandlerSuite) TestRegister() {
	s.Run("creates the record and returns the receipt", func() {
		rec := liveRecord("alice")
		s.service.EXPECT().
			Register(gomock.Any(), "alice", year, alice, resolver).
			DoAndReturn(func(ctx context.Context, _ string, _ time.Duration, _, _ domain.Identity) (*models.Receipt, error) {
				s.Equal(bob, requestcontext.Caller(ctx))
				s.Equal(now, requestcontext.Now(ctx))
				return &models.Receipt{Record: rec, Events: []models.Event{models.RegisteredEvent{
					Name: rec.Name, Owner: alice, Resolver: resolver, Expiry: rec.Expiry,
				}}}, nil
			})

		rr := s.do(http.MethodPost, "/names", bob, RegisterRequest{
			Name:            "alice",
			DurationSeconds: int64(year / time.Second),
			Owner:           alice.String(),
			Resolver:        resolver.String(),
		})

		s.Require().Equal(http.StatusCreated, rr.Code)
		resp := decodeBody[ReceiptResponse](s.T(), rr)
		s.Equal("alice", resp.Record.Name)
		s.Equal(alice.String(), resp.Record.Owner)
		s.Equal(resolver.String(), resp.Record.Resolver)
		s.Equal(now.Add(year).Unix(), resp.Record.Expiry)
		s.False(resp.Record.Expired)
		s.Require().Len(resp.Events, 1)
		s.Equal(models.EventRegistered, resp.Events[0].Type)
	})

	s.Run("requires a bearer token", func() {
		rr := s.do(http.MethodPost, "/names", domain.Identity{}, RegisterRequest{Name: "alice", DurationSeconds: 60, Owner: alice.String()})
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("rejects malformed bodies", func() {
		rr := s.do(http.MethodPost, "/names", bob, `{"name":`)
		s.Equal(http.StatusBadRequest, rr.Code)

		rr = s.do(http.MethodPost, "/names", bob, `{"name":"alice","unknown":1}`)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("rejects a bad owner before calling the registry", func() {
		rr := s.do(http.MethodPost, "/names", bob, RegisterRequest{Name: "alice", DurationSeconds: 60, Owner: "alice"})
		s.Equal(http.StatusBadRequest, rr.Code)
		resp := decodeBody[httputil.ErrorResponse](s.T(), rr)
		s.Equal(string(dErrors.CodeValidation), resp.Error)
		s.Empty(resp.Reason)
	})

	s.Run("rejects durations that overflow", func() {
		rr := s.do(http.MethodPost, "/names", bob, RegisterRequest{Name: "alice", DurationSeconds: 1 << 62, Owner: alice.String()})
		s.Equal(http.StatusBadRequest, rr.Code)
		s.Equal(string(models.ErrInvalidDuration), decodeBody[httputil.ErrorResponse](s.T(), rr).Reason)
	})
}

func (s *HandlerSuite) TestRegistryFailuresCarryReason() {
	tests := []struct {
		kind   models.Kind
		code   dErrors.Code
		status int
	}{
		{models.ErrNameNotRegistered, dErrors.CodeNotFound, http.StatusNotFound},
		{models.ErrNameNotAvailable, dErrors.CodeConflict, http.StatusConflict},
		{models.ErrSenderNotOwner, dErrors.CodeForbidden, http.StatusForbidden},
		{models.ErrInvalidDuration, dErrors.CodeValidation, http.StatusBadRequest},
		{models.ErrNameExpired, dErrors.CodeConflict, http.StatusConflict},
		{models.ErrInvalidName, dErrors.CodeValidation, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(string(tt.kind), func() {
			s.service.EXPECT().Extend(gomock.Any(), "alice", time.Minute).Return(nil, kindError(tt.kind, tt.code))

			rr := s.do(http.MethodPost, "/names/alice/extend", bob, ExtendRequest{DurationSeconds: 60})

			s.Equal(tt.status, rr.Code)
			resp := decodeBody[httputil.ErrorResponse](s.T(), rr)
			s.Equal(string(tt.kind), resp.Reason)
			s.Equal(string(tt.code), resp.Error)
		})
	}
}

func (s *HandlerSuite) TestInternalErrorsHideDetail() {
	s.service.EXPECT().Record(gomock.Any(), "alice").
		Return(nil, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeInternal, "registry operation failed"))

	rr := s.do(http.MethodGet, "/names/alice", domain.Identity{}, nil)

	s.Equal(http.StatusInternalServerError, rr.Code)
	s.NotContains(rr.Body.String(), "dial tcp")
}

func (s *HandlerSuite) TestExtend() {
	rec := liveRecord("alice")
	rec.Expiry = now.Add(2 * year)
	s.service.EXPECT().
		Extend(gomock.Any(), "alice", year).
		DoAndReturn(func(ctx context.Context, _ string, _ time.Duration) (*models.Receipt, error) {
			s.Equal(alice, requestcontext.Caller(ctx))
			return &models.Receipt{Record: rec, Events: []models.Event{models.ExtendedEvent{
				Name: rec.Name, Duration: year, NewExpiry: rec.Expiry,
			}}}, nil
		})

	rr := s.do(http.MethodPost, "/names/alice/extend", alice, ExtendRequest{DurationSeconds: int64(year / time.Second)})

	s.Require().Equal(http.StatusOK, rr.Code)
	resp := decodeBody[ReceiptResponse](s.T(), rr)
	s.Equal(now.Add(2*year).Unix(), resp.Record.Expiry)
	s.Require().Len(resp.Events, 1)
	s.Equal(models.EventExtended, resp.Events[0].Type)
}

func (s *HandlerSuite) TestSetOwner() {
	rec := liveRecord("alice")
	rec.Owner = bob
	s.service.EXPECT().SetOwner(gomock.Any(), "alice", bob).
		Return(&models.Receipt{Record: rec, Events: []models.Event{models.OwnerChangedEvent{Name: rec.Name, PreviousOwner: alice, NewOwner: bob}}}, nil)

	rr := s.do(http.MethodPut, "/names/alice/owner", alice, SetOwnerRequest{Owner: bob.String()})

	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal(bob.String(), decodeBody[ReceiptResponse](s.T(), rr).Record.Owner)

	rr = s.do(http.MethodPut, "/names/alice/owner", alice, SetOwnerRequest{})
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *HandlerSuite) TestSetResolverEmptyClears() {
	rec := liveRecord("alice")
	rec.Resolver = domain.Identity{}
	s.service.EXPECT().SetResolver(gomock.Any(), "alice", domain.Identity{}).
		Return(&models.Receipt{Record: rec, Events: []models.Event{models.ResolverChangedEvent{Name: rec.Name, PreviousResolver: resolver}}}, nil)

	rr := s.do(http.MethodPut, "/names/alice/resolver", alice, SetResolverRequest{})

	s.Require().Equal(http.StatusOK, rr.Code)
	s.Empty(decodeBody[ReceiptResponse](s.T(), rr).Record.Resolver)
}

func (s *HandlerSuite) TestQueries() {
	s.Run("record reports expiry state at request time", func() {
		rec := liveRecord("alice")
		rec.Expiry = now
		s.service.EXPECT().Record(gomock.Any(), "alice").Return(rec, nil)

		rr := s.do(http.MethodGet, "/names/alice", domain.Identity{}, nil)

		s.Require().Equal(http.StatusOK, rr.Code)
		resp := decodeBody[RecordResponse](s.T(), rr)
		s.True(resp.Expired)
		s.Equal(now.Format(time.RFC3339), resp.ExpiresAt)
	})

	s.Run("expiry", func() {
		s.service.EXPECT().Expiry(gomock.Any(), "alice").Return(now.Add(time.Hour), nil)

		rr := s.do(http.MethodGet, "/names/alice/expiry", domain.Identity{}, nil)

		s.Require().Equal(http.StatusOK, rr.Code)
		resp := decodeBody[ExpiryResponse](s.T(), rr)
		s.Equal(now.Add(time.Hour).Unix(), resp.Expiry)
		s.False(resp.Expired)
	})

	s.Run("owner", func() {
		s.service.EXPECT().Owner(gomock.Any(), "alice").Return(alice, nil)

		rr := s.do(http.MethodGet, "/names/alice/owner", domain.Identity{}, nil)

		s.Require().Equal(http.StatusOK, rr.Code)
		s.Equal(alice.String(), decodeBody[IdentityResponse](s.T(), rr).Identity)
	})

	s.Run("resolver", func() {
		s.service.EXPECT().Resolver(gomock.Any(), "alice").Return(resolver, nil)

		rr := s.do(http.MethodGet, "/names/alice/resolver", domain.Identity{}, nil)

		s.Require().Equal(http.StatusOK, rr.Code)
		s.Equal(resolver.String(), decodeBody[IdentityResponse](s.T(), rr).Identity)
	})

	s.Run("unregistered name", func() {
		s.service.EXPECT().Owner(gomock.Any(), "ghost").Return(domain.Identity{}, kindError(models.ErrNameNotRegistered, dErrors.CodeNotFound))

		rr := s.do(http.MethodGet, "/names/ghost/owner", domain.Identity{}, nil)

		s.Equal(http.StatusNotFound, rr.Code)
		s.Equal(string(models.ErrNameNotRegistered), decodeBody[httputil.ErrorResponse](s.T(), rr).Reason)
	})
}

func (s *HandlerSuite) TestEvents() {
	env, err := events.Wrap(models.RegisteredEvent{Name: "alice", Owner: alice, Expiry: now.Add(year)}, now, "req-1")
	s.Require().NoError(err)
	s.service.EXPECT().ParseName("alice").Return(models.Name("alice"), nil)
	s.service.EXPECT().ParseName("ghost").Return(models.Name("ghost"), nil)
	s.eventLog.EXPECT().ListByName(gomock.Any(), models.Name("alice")).Return([]events.Envelope{env}, nil)
	s.eventLog.EXPECT().ListByName(gomock.Any(), models.Name("ghost")).Return(nil, nil)

	rr := s.do(http.MethodGet, "/names/alice/events", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := decodeBody[EventLogResponse](s.T(), rr)
	s.Require().Len(resp.Events, 1)
	s.Equal(env.ID, resp.Events[0].ID)
	s.Equal(models.EventRegistered, resp.Events[0].Type)

	rr = s.do(http.MethodGet, "/names/ghost/events", domain.Identity{}, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"name":"ghost","events":[]}`, rr.Body.String())
}

func (s *HandlerSuite) TestEventsNormalisesName() {
	s.Run("padded name reads the trimmed name's log", func() {
		s.service.EXPECT().ParseName("alice ").Return(models.Name("alice"), nil)
		s.eventLog.EXPECT().ListByName(gomock.Any(), models.Name("alice")).Return(nil, nil)

		rr := s.do(http.MethodGet, "/names/alice%20/events", domain.Identity{}, nil)

		s.Require().Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"name":"alice","events":[]}`, rr.Body.String())
	})

	s.Run("invalid name never reaches the log", func() {
		s.service.EXPECT().ParseName(" ").Return(models.Name(""), kindError(models.ErrInvalidName, dErrors.CodeValidation))

		rr := s.do(http.MethodGet, "/names/%20/events", domain.Identity{}, nil)

		s.Equal(http.StatusBadRequest, rr.Code)
		s.Equal(string(models.ErrInvalidName), decodeBody[httputil.ErrorResponse](s.T(), rr).Reason)
	})
}

func TestEventsRouteNeedsEventLog(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := newRouter(New(mocks.NewMockService(ctrl), tokenValidator{}, discardLogger()))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/names/alice/events", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func (s *HandlerSuite) TestHandlerReadsCallerFromContext() {
	h := New(s.service, tokenValidator{}, discardLogger())
	s.service.EXPECT().
		SetResolver(gomock.Any(), "alice", resolver).
		DoAndReturn(func(ctx context.Context, _ string, _ domain.Identity) (*models.Receipt, error) {
			s.Equal(alice, requestcontext.Caller(ctx))
			return nil, kindError(models.ErrNameExpired, dErrors.CodeConflict)
		})

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/names/alice/resolver", SetResolverRequest{Resolver: resolver.String()})
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", "alice")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	req = testutil.WithRequestTime(testutil.WithCaller(req, alice), now)

	rr := httptest.NewRecorder()
	h.handleSetResolver(rr, req)

	testutil.AssertStatusAndReason(s.T(), rr, http.StatusConflict, string(models.ErrNameExpired))
}
