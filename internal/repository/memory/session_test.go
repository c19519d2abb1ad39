package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/repository/sessiontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_Contract(t *testing.T) {
	sessiontest.Run(t, NewSessionStore(time.Hour))
}

func TestSessionStore_SlidingExpiry(t *testing.T) {
	store := NewSessionStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SetIdentity(ctx, "s1", domain.Identity{Subject: "u"}))

	// Activity within the window keeps the session alive
	now = now.Add(50 * time.Second)
	s, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, s.Authenticated())

	now = now.Add(50 * time.Second)
	s, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, s.Authenticated())

	// Idle past the ttl starts over
	now = now.Add(2 * time.Minute)
	s, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, s.Authenticated())
}

func TestSessionStore_Purge(t *testing.T) {
	store := NewSessionStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = store.Get(ctx, "old")
	now = now.Add(30 * time.Second)
	_, _ = store.Get(ctx, "fresh")
	now = now.Add(45 * time.Second)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}
