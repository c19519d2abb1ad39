package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/repository/sessiontest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPool connects to POSTGRES_TEST_DSN, migrates and returns a pool
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping Postgres integration test")
	}

	require.NoError(t, RunMigrations(dsn, "file://../../../migrations"))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestOpen_UnreachableDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Open(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "kbchat",
		Database: "kbchat",
		SSLMode:  "disable",
		MaxConns: 2,
	}, time.Hour)
	assert.Error(t, err)
}

func TestSessionStore_Contract(t *testing.T) {
	pool := newTestPool(t)
	sessiontest.Run(t, NewSessionStore(pool, time.Hour))
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	pool := newTestPool(t)
	store := NewSessionStore(pool, time.Minute)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	store.now = func() time.Time { return past }
	_, err := store.Get(ctx, "purge-me")
	require.NoError(t, err)

	store.now = time.Now
	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
