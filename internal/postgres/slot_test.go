package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/rpggio/rollcall/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestOpen_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(string, string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}

	_, err := Open(context.Background(), "")
	require.ErrorContains(t, err, "open postgres")
}

func TestOpen_UsesDefaultDSN(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return nil, errors.New("stop")
	}

	_, _ = Open(context.Background(), "")
	require.Equal(t, defaultDriver, gotDriver)
	require.Equal(t, defaultDSN, gotDSN)
}

func TestSlotRepository_Live(t *testing.T) {
	dsn := os.Getenv("ROLLCALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROLLCALL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	repo, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	key := "rollcall_test_" + t.Name()
	t.Cleanup(func() { _, _ = repo.db.ExecContext(ctx, `DELETE FROM slots WHERE key = $1`, key) })

	_, err = repo.Get(ctx, key)
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, repo.Put(ctx, key, "one"))
	require.NoError(t, repo.Put(ctx, key, "two"))

	value, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "two", value)
}
