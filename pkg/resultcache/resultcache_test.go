package resultcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/resultcache"
	"github.com/cuemby/credcheck/pkg/store"
)

func newTestCache(t *testing.T) *resultcache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return resultcache.New(store.NewFromUniversalClient(rdb), store.ResultTTL, store.BatchStateTTL)
}

func TestWriteThenProbeRoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	result := model.Result{UserID: "u1", Password: "p1", Status: model.StatusValid, CheckedAtMs: time.Now().UnixMilli()}
	require.NoError(t, c.Write(ctx, result))

	got, ok, err := c.Probe(ctx, model.Credential{UserID: "u1", Password: "p1"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusValid, got.Status)
}

func TestProbeMissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, ok, err := c.Probe(context.Background(), model.Credential{UserID: "nope", Password: "nope"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordProgressIncrementsCountersAndValidList(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := store.NewFromUniversalClient(rdb)
	c := resultcache.New(client, store.ResultTTL, store.BatchStateTTL)
	ctx := context.Background()

	result := model.Result{UserID: "u3", Password: "p3", Status: model.StatusValid}
	require.NoError(t, c.Write(ctx, result))
	require.NoError(t, c.RecordProgress(ctx, "batch-1", result))

	counts, err := client.HGetAll(ctx, store.KeyProgressCounts("batch-1"))
	require.NoError(t, err)
	require.Equal(t, "1", counts["VALID"])

	validList, err := client.LRange(ctx, store.KeyProgressValid("batch-1"), 0, -1)
	require.NoError(t, err)
	require.Len(t, validList, 1)
}

func TestProbeChecksAllFourStatuses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	result := model.Result{UserID: "u2", Password: "p2", Status: model.StatusBlocked}
	require.NoError(t, c.Write(ctx, result))

	got, ok, err := c.Probe(ctx, model.Credential{UserID: "u2", Password: "p2"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusBlocked, got.Status)
}
