package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type sessionQueries struct {
	load          string
	upsert        string
	delete        string
	deleteExpired string
}

var postgresSessionQueries = sessionQueries{
	load: `SELECT sid, user_id, username, expires_at FROM sessions WHERE sid = $1`,
	upsert: `INSERT INTO sessions (sid, user_id, username, expires_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (sid) DO UPDATE SET user_id = EXCLUDED.user_id, username = EXCLUDED.username, expires_at = EXCLUDED.expires_at`,
	delete:        `DELETE FROM sessions WHERE sid = $1`,
	deleteExpired: `DELETE FROM sessions WHERE expires_at < $1`,
}

var sqliteSessionQueries = sessionQueries{
	load: `SELECT sid, user_id, username, expires_at FROM sessions WHERE sid = ?`,
	upsert: `INSERT INTO sessions (sid, user_id, username, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT (sid) DO UPDATE SET user_id = excluded.user_id, username = excluded.username, expires_at = excluded.expires_at`,
	delete:        `DELETE FROM sessions WHERE sid = ?`,
	deleteExpired: `DELETE FROM sessions WHERE expires_at < ?`,
}

type sessionRow struct {
	ID        string `db:"sid"`
	UserID    string `db:"user_id"`
	Username  string `db:"username"`
	ExpiresAt int64  `db:"expires_at"`
}

// SQLStore keeps sessions in the sessions table. Expiry is stored as unix
// milliseconds so both dialects compare it the same way.
type SQLStore struct {
	DB *sqlx.DB

	queries sessionQueries
}

// NewPostgresStore creates a SQLStore for a PostgreSQL database.
func NewPostgresStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{DB: db, queries: postgresSessionQueries}
}

// NewSQLiteStore creates a SQLStore for an SQLite database.
func NewSQLiteStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{DB: db, queries: sqliteSessionQueries}
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, id string) (Record, error) {
	var row sessionRow
	if err := s.DB.GetContext(ctx, &row, s.queries.load, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	return Record{
		ID:        row.ID,
		UserID:    row.UserID,
		Username:  row.Username,
		ExpiresAt: time.UnixMilli(row.ExpiresAt),
	}, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	_, err := s.DB.ExecContext(ctx, s.queries.upsert, rec.ID, rec.UserID, rec.Username, rec.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, s.queries.delete, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session that expired before now and reports how many were removed.
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.queries.deleteExpired, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
