// Package auth authenticates callers from bearer tokens and places the
// caller identity in the request context.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"namereg/pkg/domain"
	"namereg/pkg/requestcontext"
)

// JWTValidator validates a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// FailureCounter counts rejected requests by reason.
type FailureCounter interface {
	IncrementAuthFailures(reason string)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Caller domain.Identity
	JTI    string // JWT ID, logged for traceability
}

const (
	reasonMissingToken = "missing_token"
	reasonInvalidToken = "invalid_token"
)

// Option configures RequireAuth.
type Option func(*options)

type options struct {
	failures FailureCounter
}

func WithFailureCounter(c FailureCounter) Option {
	return func(o *options) { o.failures = c }
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

func RequireAuth(validator JWTValidator, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	reject := func(w http.ResponseWriter, reason, desc string) {
		if o.failures != nil {
			o.failures.IncrementAuthFailures(reason)
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", desc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				reject(w, reasonMissingToken, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err == nil && claims.Caller.Validate() != nil {
				err = fmt.Errorf("token carries no valid caller")
			}
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				reject(w, reasonInvalidToken, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCaller(ctx, claims.Caller)
			ctx = requestcontext.WithTokenID(ctx, claims.JTI)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
