// Package repository provides persistence implementations for the user store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/atinyakov/mindease/internal/models"
)

const pgUniqueViolationCode = "23505"

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when an insert violates username uniqueness.
	ErrUsernameTaken = errors.New("username already taken")
)

type userQueries struct {
	byUsername string
	byID       string
	insert     string
}

var postgresUserQueries = userQueries{
	byUsername: `SELECT id, username, password, created_at FROM users WHERE username = $1`,
	byID:       `SELECT id, username, password, created_at FROM users WHERE id = $1`,
	insert:     `INSERT INTO users (id, username, password, created_at) VALUES ($1, $2, $3, $4)`,
}

var sqliteUserQueries = userQueries{
	byUsername: `SELECT id, username, password, created_at FROM users WHERE username = ?`,
	byID:       `SELECT id, username, password, created_at FROM users WHERE id = ?`,
	insert:     `INSERT INTO users (id, username, password, created_at) VALUES (?, ?, ?, ?)`,
}

// UserRepository stores users in a SQL database. Username uniqueness is
// enforced by the table's UNIQUE constraint, so two concurrent inserts of the
// same name cannot both succeed.
type UserRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB

	queries           userQueries
	isUniqueViolation func(error) bool
	newID             func() string
	now               func() time.Time
}

// NewPostgresUserRepository creates a UserRepository for a PostgreSQL database.
func NewPostgresUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		DB:                db,
		queries:           postgresUserQueries,
		isUniqueViolation: isPostgresUniqueViolation,
		newID:             uuid.NewString,
		now:               time.Now,
	}
}

// NewSQLiteUserRepository creates a UserRepository for an SQLite database.
func NewSQLiteUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		DB:                db,
		queries:           sqliteUserQueries,
		isUniqueViolation: isSQLiteUniqueViolation,
		newID:             uuid.NewString,
		now:               time.Now,
	}
}

// GetUserByUsername looks a user up by exact, case-sensitive username.
// It returns ErrUserNotFound when no such user exists.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.get(ctx, r.queries.byUsername, username)
}

// GetUser looks a user up by id. It returns ErrUserNotFound when no such user exists.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.queries.byID, id)
}

// CreateUser inserts a new user with a freshly generated id. PasswordHash is
// stored exactly as given; hashing is the caller's job.
// It returns ErrUsernameTaken if the username already exists.
func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	created := models.User{
		ID:           r.newID(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    r.now().UTC(),
	}

	_, err := r.DB.ExecContext(ctx, r.queries.insert,
		created.ID, created.Username, created.PasswordHash, created.CreatedAt)
	if err != nil {
		if r.isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

func (r *UserRepository) get(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	if err := r.DB.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolationCode
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	// Without extended result codes only the primary SQLITE_CONSTRAINT is reported.
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
}
