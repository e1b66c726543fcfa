package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/mindease/internal/db"
	"github.com/atinyakov/mindease/internal/models"
	"github.com/atinyakov/mindease/internal/repository"
)

func newSQLiteRepo(t *testing.T) *repository.UserRepository {
	t.Helper()
	conn, err := db.InitSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return repository.NewSQLiteUserRepository(conn)
}

func TestSQLiteUserRepository_CreateAndGet(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, models.User{Username: "alice123", PasswordHash: "hash-1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	byName, err := repo.GetUserByUsername(ctx, "alice123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "hash-1", byName.PasswordHash)

	byID, err := repo.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice123", byID.Username)
}

func TestSQLiteUserRepository_UsernameIsCaseSensitive(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, models.User{Username: "Alice", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.GetUserByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	_, err = repo.CreateUser(ctx, models.User{Username: "alice", PasswordHash: "h"})
	assert.NoError(t, err)
}

func TestSQLiteUserRepository_DuplicateUsername(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, models.User{Username: "bob", PasswordHash: "h1"})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, models.User{Username: "bob", PasswordHash: "h2"})
	assert.ErrorIs(t, err, repository.ErrUsernameTaken)
}

func TestSQLiteUserRepository_ConcurrentInsertsSameName(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = repo.CreateUser(ctx, models.User{Username: "race", PasswordHash: "h"})
		}()
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, repository.ErrUsernameTaken):
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, taken)
}

func TestSQLiteUserRepository_GetUnknownID(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.GetUser(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
