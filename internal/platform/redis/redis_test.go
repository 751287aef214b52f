package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := New(Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mr
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	type entry struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, svc.CacheSet(ctx, "k", []entry{{ID: 1, Name: "Main"}}, 60))

	var got []entry
	require.NoError(t, svc.CacheGet(ctx, "k", &got))
	assert.Equal(t, []entry{{ID: 1, Name: "Main"}}, got)

	mr.FastForward(61 * time.Second)
	assert.ErrorIs(t, svc.CacheGet(ctx, "k", &got), ErrCacheMiss)
}

func TestStringHelpers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetString(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, svc.SetString(ctx, "a", "1", 0))
	require.NoError(t, svc.SetString(ctx, "b", "2", 0))
	v, err := svc.GetString(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, svc.Delete(ctx, "a", "b"))
	_, err = svc.GetString(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, svc.Delete(ctx))
}

func TestHealthCheck(t *testing.T) {
	svc, mr := newTestService(t)

	assert.NoError(t, svc.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, svc.HealthCheck(context.Background()))
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(Options{Addr: addr})
	assert.Error(t, err)
}
