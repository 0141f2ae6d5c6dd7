package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
)

func newStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *auth.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, auth.NewStore(client, ttl)
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t, 30*time.Minute)

	st, unknown, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, unknown)
	assert.False(t, st.Authenticated())
	assert.False(t, st.Resolving())

	require.NoError(t, store.Begin(ctx, "s-1", auth.Principal{ID: "u-1", Email: "a@b.c"}, []string{"Consultor"}))
	st, _, err = store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, st.Resolving())
	assert.True(t, st.Authenticated())

	mr.FastForward(10 * time.Minute)
	var seen []string
	require.NoError(t, store.Complete(ctx, "s-1", "u-1", func(claimRoles []string) ([]string, error) {
		seen = claimRoles
		return append(claimRoles, "Estagiário"), nil
	}))
	assert.Equal(t, []string{"Consultor"}, seen)
	assert.Equal(t, 20*time.Minute, mr.TTL("auth:state:s-1"), "completion keeps the remaining lifetime")

	st, unknown, err = store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, st.Resolving())
	assert.Equal(t, access.NewRoleSet(access.RoleConsultant), st.Roles())
	assert.Equal(t, []string{"Estagiário"}, unknown)

	require.NoError(t, store.Clear(ctx, "s-1"))
	st, _, err = store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, st.Authenticated())
}

func TestStoreCompleteRequiresMatchingPrincipal(t *testing.T) {
	ctx := context.Background()
	_, store := newStore(t, time.Hour)
	noop := func([]string) ([]string, error) { return nil, nil }

	require.ErrorIs(t, store.Complete(ctx, "missing", "u-1", noop), auth.ErrStateNotFound)

	require.NoError(t, store.Begin(ctx, "s-1", auth.Principal{ID: "u-2"}, nil))
	require.ErrorIs(t, store.Complete(ctx, "s-1", "u-1", noop), auth.ErrStateNotFound)

	st, _, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, st.Resolving(), "state of the other principal is untouched")
}

func TestStoreLoadWithoutSessionID(t *testing.T) {
	_, store := newStore(t, time.Hour)
	st, _, err := store.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, auth.State{}, st)
	assert.NoError(t, store.Clear(context.Background(), ""))
}

func TestStoreResolvingSessionExpiresAfterDeadline(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t, time.Hour)
	store.SetResolveDeadline(time.Minute)

	require.NoError(t, store.Begin(ctx, "s-1", auth.Principal{ID: "u-1"}, nil))
	mr.FastForward(30 * time.Second)
	st, _, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, st.Resolving())

	mr.FastForward(time.Minute)
	st, _, err = store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, st.Resolving())
	assert.False(t, st.Authenticated())
	assert.False(t, mr.Exists("auth:state:s-1"))
}

func TestStoreCompletedSessionIgnoresDeadline(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t, time.Hour)
	store.SetResolveDeadline(time.Minute)

	require.NoError(t, store.Begin(ctx, "s-1", auth.Principal{ID: "u-1"}, nil))
	require.NoError(t, store.Complete(ctx, "s-1", "u-1", func(claimRoles []string) ([]string, error) {
		return []string{"Consultor"}, nil
	}))
	assert.False(t, mr.Exists("auth:resolving:s-1"))

	mr.FastForward(10 * time.Minute)
	st, _, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, st.Authenticated())
	assert.True(t, st.HasRole("Consultor"))
}

func TestStoreAbandon(t *testing.T) {
	ctx := context.Background()
	mr, store := newStore(t, time.Hour)

	require.ErrorIs(t, store.Abandon(ctx, "missing", "u-1"), auth.ErrStateNotFound)

	require.NoError(t, store.Begin(ctx, "s-1", auth.Principal{ID: "u-1"}, nil))
	require.ErrorIs(t, store.Abandon(ctx, "s-1", "u-2"), auth.ErrStateNotFound)
	require.NoError(t, store.Abandon(ctx, "s-1", "u-1"))
	assert.False(t, mr.Exists("auth:state:s-1"))
	assert.False(t, mr.Exists("auth:resolving:s-1"))

	require.NoError(t, store.Begin(ctx, "s-2", auth.Principal{ID: "u-1"}, nil))
	require.NoError(t, store.Complete(ctx, "s-2", "u-1", func([]string) ([]string, error) { return nil, nil }))
	require.ErrorIs(t, store.Abandon(ctx, "s-2", "u-1"), auth.ErrStateNotFound)
	assert.True(t, mr.Exists("auth:state:s-2"), "a resolved sign-in is kept")
}
