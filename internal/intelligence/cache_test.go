package intelligence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheInvalidateAnnouncesTenant(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type bump struct{ tenant, version int64 }
	got := make(chan bump, 4)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(tenantID, version int64) {
		got <- bump{tenantID, version}
	}))

	_, err := cache.Version(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 3))

	select {
	case b := <-got:
		require.Equal(t, bump{3, 2}, b)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation received")
	}
}

func TestCachedKeysCarryTenantVersion(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"a"}, nil
	}

	for _, tenantID := range []int64{1, 2} {
		out, err := cached(ctx, cache, tenantID, viewAlerts, alertKeyParts(engineNow), load)
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, out)
	}
	require.Equal(t, 2, loads)
	require.True(t, mr.Exists("intel:alerts:1:v1:2024-06-20"))
	require.True(t, mr.Exists("intel:alerts:2:v1:2024-06-20"))

	require.NoError(t, cache.Invalidate(ctx, 1))
	_, err := cached(ctx, cache, 2, viewAlerts, alertKeyParts(engineNow), load)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
	_, err = cached(ctx, cache, 1, viewAlerts, alertKeyParts(engineNow), load)
	require.NoError(t, err)
	require.Equal(t, 3, loads)
	require.True(t, mr.Exists("intel:alerts:1:v2:2024-06-20"))
}

func TestCachedLoadErrorNotStored(t *testing.T) {
	cache, mr := newTestCache(t)
	boom := errors.New("boom")
	_, err := cached(context.Background(), cache, 1, viewAlerts, alertKeyParts(engineNow), func(context.Context) ([]string, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	for _, key := range mr.Keys() {
		require.False(t, strings.HasPrefix(key, "intel:alerts:"), key)
	}
}

func TestOpportunityKeyIncludesLookback(t *testing.T) {
	q := OpportunityQuery{Metric: MetricRevenue, Limit: 20, MinimumCustomerThreshold: 3}
	short := strings.Join(opportunityKeyParts(10, q, 30, engineNow), ":")
	long := strings.Join(opportunityKeyParts(10, q, 180, engineNow), ":")
	require.NotEqual(t, short, long)
	require.Contains(t, long, "lb180")
}

func TestParseInvalidation(t *testing.T) {
	tenantID, version, ok := parseInvalidation("42:7")
	require.True(t, ok)
	require.Equal(t, int64(42), tenantID)
	require.Equal(t, int64(7), version)

	for _, bad := range []string{"", "42", "x:1", "1:y"} {
		_, _, ok := parseInvalidation(bad)
		require.False(t, ok, bad)
	}
}
