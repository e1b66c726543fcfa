package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/session"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (session.Record, error) {
	return session.Record{}, errors.New("store unavailable")
}
func (brokenStore) Save(context.Context, session.Record) error { return nil }
func (brokenStore) Delete(context.Context, string) error       { return nil }

func TestSessions_StoresSessionInContext(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), session.Record{
		ID: "tok", UserID: "u-1", Username: "alice123", ExpiresAt: time.Now().Add(time.Hour),
	}))
	m := session.NewManager(store, time.Hour, session.CookieOptions{Name: "mindease.sid"})

	var got *session.Session
	h := Sessions(m, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "mindease.sid", Value: "tok"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID())
}

func TestSessions_AnonymousWithoutCookie(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), time.Hour, session.CookieOptions{Name: "mindease.sid"})

	var got *session.Session
	h := Sessions(m, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Empty(t, got.UserID())
}

func TestSessions_StoreFailure(t *testing.T) {
	m := session.NewManager(brokenStore{}, time.Hour, session.CookieOptions{Name: "mindease.sid"})
	called := false
	h := Sessions(m, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "mindease.sid", Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestSessionFromContext_Missing(t *testing.T) {
	assert.Nil(t, SessionFromContext(context.Background()))
}
