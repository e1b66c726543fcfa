// Package middleware provides HTTP middlewares for sessions, logging, CORS,
// metrics and rate limiting.
package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/session"
)

type ctxKey string

const sessionKey ctxKey = "session"

// Sessions resolves the request's session cookie through m and stores the
// session in the request context. Requests without a valid cookie get an
// anonymous session. If the store cannot be read the request fails with 500.
func Sessions(m *session.Manager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Load(r)
			if err != nil {
				logger.Error("failed to load session", zap.Error(err), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session stored by Sessions, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}
