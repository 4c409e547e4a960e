package testutil

import (
	"net/http"
	"time"

	"namereg/pkg/domain"
	"namereg/pkg/requestcontext"
)

// WithCaller places caller in the request context, as the auth middleware
// does for a valid bearer token.
func WithCaller(req *http.Request, caller domain.Identity) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
