// Package service provides the authentication business logic, delegating
// persistence to a UserRepository and password work to a PasswordHasher.
package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/crypto"
	"github.com/atinyakov/mindease/internal/models"
	"github.com/atinyakov/mindease/internal/repository"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// UserRepository defines the persistence operations
// required by the authentication service.
type UserRepository interface {
	// GetUserByUsername returns the user with exactly this username,
	// or repository.ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUser returns the user with the given id, or repository.ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*models.User, error)
	// CreateUser stores a new user and assigns its id. It returns
	// repository.ErrUsernameTaken if the username already exists.
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of plain.
	Hash(ctx context.Context, plain string) (string, error)
	// Verify reports whether plain matches hash.
	Verify(ctx context.Context, hash, plain string) (bool, error)
	// VerifyDummy performs a verification of equal cost whose result is discarded.
	VerifyDummy(ctx context.Context, plain string) error
}

// Session is the per-request session the service reads and mutates.
type Session interface {
	// UserID returns the authenticated user id, or "" for an anonymous session.
	UserID() string
	// Set binds the session to a user.
	Set(userID, username string)
	// Regenerate discards the current session and starts a new one with a fresh token.
	Regenerate(ctx context.Context) error
	// Save persists the session.
	Save(ctx context.Context) error
	// Destroy deletes the session.
	Destroy(ctx context.Context) error
}

// AuthService implements signup, login, logout and current-user lookup.
// It holds no per-request state and is safe for concurrent use.
type AuthService struct {
	// repo performs the data-layer operations.
	repo UserRepository
	// hasher computes and checks password hashes.
	hasher PasswordHasher
	log    *zap.Logger
}

// NewAuthService constructs an AuthService. A nil logger disables logging.
func NewAuthService(repo UserRepository, hasher PasswordHasher, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{repo: repo, hasher: hasher, log: log}
}

// Signup registers a new user and authenticates sess as that user.
// It returns a *ValidationError for bad input, ErrUsernameTaken when the
// name is registered (including when a concurrent signup wins the race),
// and ErrSession if the session cannot be established.
func (s *AuthService) Signup(ctx context.Context, sess Session, username, password string) (*models.PublicUser, error) {
	if err := validateSignup(username, password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, fmt.Errorf("signup: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, models.User{Username: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("signup: %w", err)
	}

	if err := s.establish(ctx, sess, user); err != nil {
		return nil, err
	}

	s.log.Info("user signed up", zap.String("user_id", user.ID), zap.String("username", user.Username))
	public := user.Public()
	return &public, nil
}

// Login authenticates sess as the user identified by username and password.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials
// after a password comparison of the same cost.
func (s *AuthService) Login(ctx context.Context, sess Session, username, password string) (*models.PublicUser, error) {
	if username == "" || password == "" {
		return nil, &ValidationError{Message: "Username and password required"}
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		if err := s.hasher.VerifyDummy(ctx, password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		s.log.Debug("login rejected", zap.String("reason", "unknown user"))
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		s.log.Debug("login rejected", zap.String("reason", "password mismatch"), zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	if err := s.establish(ctx, sess, user); err != nil {
		return nil, err
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID))
	public := user.Public()
	return &public, nil
}

// Logout destroys the session. A session with no user is destroyed as well,
// so logout always ends in the anonymous state.
func (s *AuthService) Logout(ctx context.Context, sess Session) error {
	userID := sess.UserID()
	if err := sess.Destroy(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSession, err)
	}
	if userID != "" {
		s.log.Info("user logged out", zap.String("user_id", userID))
	}
	return nil
}

// CurrentUser returns the public profile of the user bound to sess.
func (s *AuthService) CurrentUser(ctx context.Context, sess Session) (*models.PublicUser, error) {
	userID := sess.UserID()
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("current user: %w", err)
	}
	public := user.Public()
	return &public, nil
}

func (s *AuthService) establish(ctx context.Context, sess Session, user *models.User) error {
	if err := sess.Regenerate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSession, err)
	}
	sess.Set(user.ID, user.Username)
	if err := sess.Save(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSession, err)
	}
	return nil
}

func validateSignup(username, password string) error {
	if details := SignupFieldErrors(username, password); len(details) > 0 {
		return &ValidationError{Message: "Invalid input", Details: details}
	}
	return nil
}

// SignupFieldErrors returns the length violations of signup credentials,
// username first.
func SignupFieldErrors(username, password string) []FieldError {
	var details []FieldError
	if utf8.RuneCountInString(username) < minUsernameLength {
		details = append(details, FieldError{Field: "username", Message: "Username must be at least 3 characters"})
	}
	switch {
	case utf8.RuneCountInString(password) < minPasswordLength:
		details = append(details, FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	case len(password) > crypto.MaxPasswordBytes:
		details = append(details, FieldError{Field: "password", Message: "Password must be at most 72 bytes"})
	}
	return details
}
