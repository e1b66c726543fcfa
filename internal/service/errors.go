package service

import "errors"

// Sentinel errors returned by AuthService. Handlers map them to HTTP status codes.
var (
	// ErrUsernameTaken reports that the requested username is already registered.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials reports an unknown username or a wrong password.
	// Both cases deliberately share this one error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated reports a request whose session carries no user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUserNotFound reports a session whose user no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrSession reports a failure to regenerate, save or destroy a session.
	ErrSession = errors.New("session error")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-range input.
// Details is empty when the problem is not tied to a single field.
type ValidationError struct {
	Message string
	Details []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + e.Details[0].Field + ": " + e.Details[0].Message
}
