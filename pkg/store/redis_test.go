package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/store"
)

func newTestClient(t *testing.T) store.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewFromUniversalClient(rdb)
}

func TestGetSetRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
}

func TestSetNXIsMutualExclusion(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lease", []byte("worker-1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.SetNX(ctx, "lease", []byte("worker-2"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBLPopTimeoutIsNotError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	item, err := c.BLPop(ctx, 100*time.Millisecond, "queue:tasks")
	require.NoError(t, err)
	require.Nil(t, item)

	require.NoError(t, c.RPush(ctx, "queue:tasks", []byte("payload")))
	item, err = c.BLPop(ctx, time.Second, "queue:tasks")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, "queue:tasks", item.Key)
	require.Equal(t, "payload", string(item.Value))
}

func TestIncrAndHash(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "progress:b1:count")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = c.HIncrBy(ctx, "progress:b1:counts", "VALID", 1)
	require.NoError(t, err)
	m, err := c.HGetAll(ctx, "progress:b1:counts")
	require.NoError(t, err)
	require.Equal(t, "1", m["VALID"])
}

func TestPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, "forward_events")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, c.Publish(ctx, "forward_events", []byte("hello")))

	select {
	case msg := <-sub.Channel():
		require.Equal(t, "forward_events", msg.Channel)
		require.Equal(t, "hello", string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestScanMatchesPattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "job:b1:t1", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "job:b1:t2", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "other", []byte("x"), time.Minute))

	keys, err := c.Scan(ctx, "job:b1:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"job:b1:t1", "job:b1:t2"}, keys)
}
