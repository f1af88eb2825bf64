package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func TestNewPingsOnConnect(t *testing.T) {
	_, err := New(context.Background(), "localhost:1", WithDialTimeout(100*time.Millisecond))
	assert.Error(t, err)
}

func TestGetSetBytes(t *testing.T) {
	mr, c := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetBytes(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBytes(ctx, "feed:wzdx-co:raw", []byte(`{"features":[]}`), time.Minute))

	val, ok, err := c.GetBytes(ctx, "feed:wzdx-co:raw")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"features":[]}`), val)

	// TTL expiry
	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetBytes(ctx, "feed:wzdx-co:raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetSetJSON(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "wzdx-co", Count: 7}, 0))

	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "wzdx-co", Count: 7}, got)

	ok, err = c.GetJSON(ctx, "absent", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrSetsWindowOnFirstIncrement(t *testing.T) {
	mr, c := newTestClient(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "rl:register:10.0.0.1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "rl:register:10.0.0.1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := c.TTL(ctx, "rl:register:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Hour)

	// Counter resets when the window lapses
	mr.FastForward(time.Hour + time.Second)
	n, err = c.Incr(ctx, "rl:register:10.0.0.1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDelete(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetBytes(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Delete(ctx, "a", "never-existed"))

	_, ok, err := c.GetBytes(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "feed:wzdx-co:raw", FeedRawKey("wzdx-co"))
	assert.Equal(t, "nws:zone:COZ039", ZoneKey("COZ039"))
	assert.Equal(t, "route:check:abc123", RouteCheckKey("abc123"))
}
