// Package models defines the core data structures for users.
package models

import "time"

// User represents a registered MindEase account.
type User struct {
	// ID is the opaque unique identifier assigned at creation.
	ID string `db:"id"`
	// Username is the case-sensitive login name chosen by the user.
	Username string `db:"username"`
	// PasswordHash is the bcrypt hash of the user's password. It never holds plaintext.
	PasswordHash string `db:"password"`
	// CreatedAt is when the account was registered.
	CreatedAt time.Time `db:"created_at"`
}

// Public returns the profile that may be shown to the client.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}

// PublicUser is the user profile exposed over the API.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Credentials is the JSON payload accepted by signup and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
