package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedis_Miss(t *testing.T) {
	r, _ := newTestRedis(t)

	got, ok, err := r.Get(context.Background(), "screen:absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestRedis_PutGet(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "screen:abc", []byte(`{"v":1}`), time.Hour))

	got, ok, err := r.Get(ctx, "screen:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":1}`, string(got))

	stored, err := mr.Get("test:screen:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, stored)
	assert.False(t, mr.Exists("screen:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:screen:abc"))
}

func TestRedis_Expiry(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "screen:ttl", []byte("x"), time.Minute))
	mr.FastForward(59 * time.Second)
	_, ok, err := r.Get(ctx, "screen:ttl")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = r.Get(ctx, "screen:ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_NoTTL(t *testing.T) {
	r, mr := newTestRedis(t)

	require.NoError(t, r.Put(context.Background(), "screen:forever", []byte("x"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("test:screen:forever"))
}

func TestRedis_ServerDown(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	_, _, err := r.Get(context.Background(), "screen:abc")
	assert.Error(t, err)
	assert.Error(t, r.Put(context.Background(), "screen:abc", []byte("x"), time.Minute))
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := OpenRedis(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Put(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("parcel-screen:k"))
}
