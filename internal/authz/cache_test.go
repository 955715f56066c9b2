package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/grants"
)

type countingGrants struct {
	calls  int
	grants []grants.UserPermission
}

func (c *countingGrants) ListActive(context.Context, int64) ([]grants.UserPermission, error) {
	c.calls++
	return c.grants, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCachedGrantsLoadsOnce(t *testing.T) {
	source := &countingGrants{grants: []grants.UserPermission{{
		ID:       uuid.New(),
		UserID:   7,
		Resource: catalog.ResourceJobs,
		Action:   catalog.ActionView,
		Scope:    catalog.ScopeOwn,
		IsActive: true,
	}}}
	cached := NewCachedGrants(source, newTestCache(t))
	ctx := context.Background()

	first, err := cached.ListActive(ctx, 7)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cached.ListActive(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, source.calls)
}

func TestCachedGrantsBumpInvalidates(t *testing.T) {
	source := &countingGrants{}
	cache := newTestCache(t)
	cached := NewCachedGrants(source, cache)
	ctx := context.Background()

	_, err := cached.ListActive(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	require.NoError(t, cache.Bump(ctx))

	_, err = cached.ListActive(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestCacheNilDegradesToPassThrough(t *testing.T) {
	source := &countingGrants{}
	cached := NewCachedGrants(source, nil)

	_, err := cached.ListActive(context.Background(), 7)
	require.NoError(t, err)
	_, err = cached.ListActive(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestCacheVersionInitialises(t *testing.T) {
	cache := newTestCache(t)
	ver, err := cache.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	require.NoError(t, cache.Bump(context.Background()))
	ver, err = cache.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}
