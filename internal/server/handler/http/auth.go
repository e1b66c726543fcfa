// Package http provides the HTTP handlers and routing for the MindEase
// authentication API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/middleware"
	"github.com/atinyakov/mindease/internal/models"
	"github.com/atinyakov/mindease/internal/service"
	"github.com/atinyakov/mindease/internal/session"
)

const maxBodyBytes = 1 << 20

// AuthService defines the authentication operations
// required by the HTTP handlers.
type AuthService interface {
	// Signup registers a user and authenticates the session.
	Signup(ctx context.Context, sess service.Session, username, password string) (*models.PublicUser, error)
	// Login authenticates the session with existing credentials.
	Login(ctx context.Context, sess service.Session, username, password string) (*models.PublicUser, error)
	// Logout ends the session.
	Logout(ctx context.Context, sess service.Session) error
	// CurrentUser returns the user bound to the session.
	CurrentUser(ctx context.Context, sess service.Session) (*models.PublicUser, error)
}

// AuthHandler handles the /api/auth endpoints.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	// Sessions issues and clears session cookies. It also loads the session
	// when the Sessions middleware did not run.
	Sessions *session.Manager
	Logger   *zap.Logger
}

// Signup handles POST /api/auth/signup.
// It expects {"username": string, "password": string} and answers
// 201 {"id", "username"} with a fresh session cookie.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body := decodeBody(w, r)
	username, usernameErr := stringField(body, "username")
	password, passwordErr := stringField(body, "password")
	if usernameErr != nil || passwordErr != nil {
		h.writeServiceError(w, r, &service.ValidationError{
			Message: "Invalid input",
			Details: signupDetails(username, usernameErr, password, passwordErr),
		})
		return
	}

	user, err := h.AuthService.Signup(r.Context(), sess, username, password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.Sessions.WriteCookie(w, sess)
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
// Missing, empty or non-string credentials are answered with 400
// "Username and password required".
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body := decodeBody(w, r)
	username, _ := stringField(body, "username")
	password, _ := stringField(body, "password")

	user, err := h.AuthService.Login(r.Context(), sess, username, password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.Sessions.WriteCookie(w, sess)
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout. It succeeds without a session too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.AuthService.Logout(r.Context(), sess); err != nil {
		h.logger().Error("logout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Could not log out")
		return
	}

	h.Sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	user, err := h.AuthService.CurrentUser(r.Context(), sess)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		return sess, true
	}
	sess, err := h.Sessions.Load(r)
	if err != nil {
		h.logger().Error("failed to load session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return sess, true
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Details: verr.Details})
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrSession):
		h.logger().Error("session failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Session error")
	default:
		h.logger().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *AuthHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// signupDetails reports every failing field in field order. A field with a
// type error is reported as such; a well-typed field gets its length checks.
func signupDetails(username string, usernameErr *service.FieldError, password string, passwordErr *service.FieldError) []service.FieldError {
	checked := service.SignupFieldErrors(username, password)
	var details []service.FieldError
	for _, f := range []struct {
		name string
		err  *service.FieldError
	}{{"username", usernameErr}, {"password", passwordErr}} {
		if f.err != nil {
			details = append(details, *f.err)
			continue
		}
		for _, fe := range checked {
			if fe.Field == f.name {
				details = append(details, fe)
			}
		}
	}
	return details
}

// decodeBody reads a JSON object. A body that is not declared as JSON, is
// empty or is anything but an object yields nil so that every field reads as
// missing.
func decodeBody(w http.ResponseWriter, r *http.Request) map[string]json.RawMessage {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil
	}
	return body
}

func stringField(body map[string]json.RawMessage, name string) (string, *service.FieldError) {
	raw, ok := body[name]
	if !ok || string(raw) == "null" {
		return "", &service.FieldError{Field: name, Message: "Required"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &service.FieldError{Field: name, Message: "Expected string"}
	}
	return s, nil
}
