package retrievalcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStableAcrossFilterOrder(t *testing.T) {
	k1 := Key("docs", "rel1", "query", map[string]string{"a": "1", "b": "2"}, 5)
	k2 := Key("docs", "rel1", "query", map[string]string{"b": "2", "a": "1"}, 5)
	assert.Equal(t, k1, k2)
}

func TestKeyDiffersOnQuery(t *testing.T) {
	k1 := Key("docs", "rel1", "query a", nil, 5)
	k2 := Key("docs", "rel1", "query b", nil, 5)
	assert.NotEqual(t, k1, k2)
}

func TestInMemoryGetSet(t *testing.T) {
	c := New(nil, 50*time.Millisecond)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("value")))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestInMemoryExpires(t *testing.T) {
	c := New(nil, 20*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	c := New(nil, time.Minute)
	ctx := context.Background()
	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "alice"}))

	var got payload
	ok := c.GetJSON(ctx, "k", &got)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)
}

func TestRedisBackedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("value")))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}
