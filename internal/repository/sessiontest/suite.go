// Package sessiontest holds behaviour tests shared by every SessionStore backend.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the SessionStore contract.
// Each subtest uses fresh session ids so a shared backend is fine.
func Run(t *testing.T, store domain.SessionStore) {
	t.Helper()
	ctx := context.Background()

	alice := domain.Identity{Subject: "alice", Email: "alice@example.com", Groups: []string{"staff"}}
	bob := domain.Identity{Subject: "bob", Email: "bob@example.com"}

	t.Run("get creates empty session", func(t *testing.T) {
		id := uuid.NewString()

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, s.ID)
		assert.False(t, s.Authenticated())
		assert.NotNil(t, s.Transcript)
		assert.Empty(t, s.Transcript)
	})

	t.Run("set identity then append", func(t *testing.T) {
		id := uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, id, alice))
		require.NoError(t, store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"}))
		require.NoError(t, store.AppendTurn(ctx, id, "alice", domain.Turn{User: "And?", Bot: "More"}))

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, s.Authenticated())
		assert.Equal(t, "alice", s.Identity.Subject)
		assert.Equal(t, "alice@example.com", s.Identity.Email)
		assert.Equal(t, []string{"staff"}, s.Identity.Groups)
		assert.Equal(t, domain.Transcript{
			{User: "Hi", Bot: "Hello"},
			{User: "And?", Bot: "More"},
		}, s.Transcript)
	})

	t.Run("append without identity is unauthorized", func(t *testing.T) {
		id := uuid.NewString()

		err := store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, s.Transcript)
	})

	t.Run("append with stale subject is unauthorized", func(t *testing.T) {
		id := uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, id, alice))
		require.NoError(t, store.SetIdentity(ctx, id, bob))

		err := store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "bob", s.Identity.Subject)
		assert.Empty(t, s.Transcript)
	})

	t.Run("re-authentication clears transcript", func(t *testing.T) {
		id := uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, id, alice))
		require.NoError(t, store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"}))
		require.NoError(t, store.SetIdentity(ctx, id, alice))

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.Authenticated())
		assert.Empty(t, s.Transcript)
	})

	t.Run("clear removes identity and transcript", func(t *testing.T) {
		id := uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, id, alice))
		require.NoError(t, store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"}))
		require.NoError(t, store.Clear(ctx, id))

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, s.Authenticated())
		assert.Empty(t, s.Transcript)

		err = store.AppendTurn(ctx, id, "alice", domain.Turn{User: "again", Bot: "no"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, a, alice))
		require.NoError(t, store.SetIdentity(ctx, b, alice))
		require.NoError(t, store.AppendTurn(ctx, a, "alice", domain.Turn{User: "A", Bot: "1"}))

		sb, err := store.Get(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, sb.Transcript)
	})

	t.Run("returned session is a copy", func(t *testing.T) {
		id := uuid.NewString()

		require.NoError(t, store.SetIdentity(ctx, id, alice))
		require.NoError(t, store.AppendTurn(ctx, id, "alice", domain.Turn{User: "Hi", Bot: "Hello"}))

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		s.Transcript[0].Bot = "tampered"
		s.Identity.Subject = "mallory"

		again, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Hello", again.Transcript[0].Bot)
		assert.Equal(t, "alice", again.Identity.Subject)
	})

	t.Run("concurrent appends are not lost", func(t *testing.T) {
		id := uuid.NewString()
		require.NoError(t, store.SetIdentity(ctx, id, alice))

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.AppendTurn(ctx, id, "alice", domain.Turn{User: fmt.Sprintf("q%d", i), Bot: "a"})
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		s, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, s.Transcript, n)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
