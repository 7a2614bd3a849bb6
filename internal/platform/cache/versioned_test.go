package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestVersioned(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "test", time.Minute), srv
}

func TestVersionedFetchUsesCacheUntilBump(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestVersioned(t)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"calls": calls}, nil
	}

	key, err := c.BuildKey(ctx, "alpha", "summary")
	require.NoError(t, err)
	require.Equal(t, "test:alpha:summary:v1", key)

	var got map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 1, got["calls"])

	require.NoError(t, c.Bump(ctx, "alpha"))
	key, err = c.BuildKey(ctx, "alpha", "summary")
	require.NoError(t, err)
	require.Equal(t, "test:alpha:summary:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, calls)
}

func TestVersionedScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestVersioned(t)

	require.NoError(t, c.Bump(ctx, "alpha"))
	require.NoError(t, c.Bump(ctx, "alpha"))

	alpha, err := c.Version(ctx, "alpha")
	require.NoError(t, err)
	beta, err := c.Version(ctx, "beta")
	require.NoError(t, err)
	require.Equal(t, int64(2), alpha)
	require.Equal(t, int64(1), beta)
}

func TestVersionedWithoutClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, "test", time.Minute)
	var got []string
	err := c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got)
}
