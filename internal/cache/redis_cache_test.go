package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturapos/backend/internal/domain"
)

var (
	_ ReportCache = (*NoopReportCache)(nil)
	_ ReportCache = (*RedisReportCache)(nil)
)

func newTestCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisReportCache(mr.Addr(), "", 0, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c, mr
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, err := c.Key(ctx, "reports", "top")
	require.NoError(t, err)
	assert.Equal(t, "reports:top:v1", key)

	var got []domain.ProductSales
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := []domain.DailySales{{Date: "2024-01-01", Total: decimal.RequireFromString("12.5")}}
	require.NoError(t, c.Set(ctx, key, want))

	var daily []domain.DailySales
	hit, err = c.Get(ctx, key, &daily)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, daily, 1)
	assert.Equal(t, "2024-01-01", daily[0].Date)
	assert.True(t, want[0].Total.Equal(daily[0].Total))
}

func TestRedisReportCacheBumpOrphansOldKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	before, err := c.Key(ctx, "reports", "top")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, before, []int{1}))

	require.NoError(t, c.Bump(ctx))

	after, err := c.Key(ctx, "reports", "top")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "reports:top:v2", after)

	var got []int
	hit, err := c.Get(ctx, after, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisReportCacheEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "reports:x:v1", []int{1}))
	mr.FastForward(2 * time.Minute)

	var got []int
	hit, err := c.Get(ctx, "reports:x:v1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	c := NewNoopReportCache()

	key, err := c.Key(ctx, "reports", "top")
	require.NoError(t, err)
	assert.Equal(t, "reports:top:v0", key)
	require.NoError(t, c.Set(ctx, key, []int{1}))

	var got []int
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Bump(ctx))
	key, err = c.Key(ctx, "reports", "top")
	require.NoError(t, err)
	assert.Equal(t, "reports:top:v1", key)
}
