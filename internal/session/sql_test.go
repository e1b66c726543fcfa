package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/mindease/internal/db"
)

func setupSessionMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock, func()) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	store := NewPostgresStore(sqlx.NewDb(conn, "sqlmock"))
	return store, mock, func() { conn.Close() }
}

func TestSQLStore_Load(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sid, user_id, username, expires_at FROM sessions WHERE sid = $1`)).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"sid", "user_id", "username", "expires_at"}).
			AddRow("tok", "u-1", "alice123", fixedNow.UnixMilli()))

	rec, err := store.Load(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-1", rec.UserID)
	assert.Equal(t, "alice123", rec.Username)
	assert.True(t, rec.ExpiresAt.Equal(fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadNotFound(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sid, user_id, username, expires_at FROM sessions WHERE sid = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"sid", "user_id", "username", "expires_at"}))

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadError(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sid, user_id, username, expires_at FROM sessions WHERE sid = $1`)).
		WithArgs("tok").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Load(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Save(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (sid, user_id, username, expires_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs("tok", "u-1", "alice123", fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), Record{ID: "tok", UserID: "u-1", Username: "alice123", ExpiresAt: fixedNow})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Delete(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE sid = $1`)).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteExpired(t *testing.T) {
	store, mock, cleanup := setupSessionMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at < $1`)).
		WithArgs(fixedNow.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteExpired(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	conn, err := db.InitSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	store := NewSQLiteStore(conn)
	ctx := context.Background()
	exp := fixedNow.Add(time.Hour)

	require.NoError(t, store.Save(ctx, Record{ID: "tok", UserID: "u-1", Username: "alice123", ExpiresAt: exp}))
	require.NoError(t, store.Save(ctx, Record{ID: "tok", UserID: "u-2", Username: "bob", ExpiresAt: exp}))

	rec, err := store.Load(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u-2", rec.UserID)
	assert.True(t, rec.ExpiresAt.Equal(exp))

	require.NoError(t, store.Save(ctx, Record{ID: "stale", ExpiresAt: fixedNow.Add(-time.Hour)}))
	n, err := store.DeleteExpired(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Load(ctx, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}
