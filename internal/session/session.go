// Package session implements opaque server-side sessions. The client only
// ever holds a random token in a cookie; identity lives in a Store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const tokenBytes = 32

// ErrNotFound is returned by a Store when no record has the given id.
var ErrNotFound = errors.New("session not found")

// Record is the persisted form of a session.
type Record struct {
	ID        string
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// Store persists session records keyed by token.
type Store interface {
	// Load returns the record for id, or ErrNotFound.
	Load(ctx context.Context, id string) (Record, error)
	// Save creates or replaces the record with the same id.
	Save(ctx context.Context, rec Record) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
}

// CookieOptions controls how the session token travels to the client.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Manager binds a Store to cookie transport and a session lifetime.
type Manager struct {
	store  Store
	cookie CookieOptions
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager that keeps sessions alive for ttl after each save.
func NewManager(store Store, ttl time.Duration, cookie CookieOptions) *Manager {
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return &Manager{store: store, cookie: cookie, ttl: ttl, now: time.Now}
}

// Load resolves the session referenced by the request cookie. A missing,
// unknown or expired token yields an anonymous session without an id.
// Only a failing store is reported as an error.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	s := &Session{manager: m}

	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return s, nil
	}

	rec, err := m.store.Load(r.Context(), c.Value)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !rec.ExpiresAt.After(m.now()) {
		return s, nil
	}

	s.id = rec.ID
	s.userID = rec.UserID
	s.username = rec.Username
	return s, nil
}

// WriteCookie sends the session token to the client.
func (m *Manager) WriteCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    s.id,
		Path:     m.cookie.Path,
		Domain:   m.cookie.Domain,
		Expires:  m.now().Add(m.ttl),
		MaxAge:   int(m.ttl / time.Second),
		Secure:   m.cookie.Secure,
		HttpOnly: true,
		SameSite: m.cookie.SameSite,
	})
}

// ClearCookie instructs the client to drop the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     m.cookie.Path,
		Domain:   m.cookie.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   m.cookie.Secure,
		HttpOnly: true,
		SameSite: m.cookie.SameSite,
	})
}

// Session is the per-request view of a session.
type Session struct {
	manager  *Manager
	id       string
	userID   string
	username string
}

// ID returns the session token, or "" for an anonymous session that was never saved.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user id, or "".
func (s *Session) UserID() string { return s.userID }

// Username returns the cached username of the authenticated user, or "".
func (s *Session) Username() string { return s.username }

// Set binds the session to a user. The change is persisted by Save.
func (s *Session) Set(userID, username string) {
	s.userID = userID
	s.username = username
}

// Regenerate discards the current record and identity and assigns a fresh
// token, so a token known before authentication is never authenticated.
func (s *Session) Regenerate(ctx context.Context) error {
	if s.id != "" {
		if err := s.manager.store.Delete(ctx, s.id); err != nil {
			return fmt.Errorf("regenerate session: %w", err)
		}
	}
	id, err := newToken()
	if err != nil {
		return fmt.Errorf("regenerate session: %w", err)
	}
	s.id = id
	s.userID = ""
	s.username = ""
	return nil
}

// Save persists the session and extends its expiry by the manager's TTL.
func (s *Session) Save(ctx context.Context) error {
	if s.id == "" {
		id, err := newToken()
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		s.id = id
	}
	rec := Record{
		ID:        s.id,
		UserID:    s.userID,
		Username:  s.username,
		ExpiresAt: s.manager.now().Add(s.manager.ttl),
	}
	if err := s.manager.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Destroy deletes the session record. An anonymous session is left as is.
func (s *Session) Destroy(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	if err := s.manager.store.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	s.id = ""
	s.userID = ""
	s.username = ""
	return nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
