package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/proxypool"
	"github.com/cuemby/credcheck/pkg/queue"
	"github.com/cuemby/credcheck/pkg/resultcache"
	"github.com/cuemby/credcheck/pkg/store"
)

func newTestManager(t *testing.T) (*queue.Manager, store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := store.NewFromUniversalClient(rdb)
	cache := resultcache.New(client, store.ResultTTL, store.BatchStateTTL)
	pool := proxypool.NewPool(map[string]string{"p1": "http://p1"})
	return queue.New(client, cache, pool), client
}

func TestEnqueueBatchQueuesEveryNewCredential(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	res, err := m.EnqueueBatch(ctx, "chat-1", []model.Credential{
		{UserID: "u1", Password: "p1"},
		{UserID: "u2", Password: "p2"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Batch.Total)
	require.Equal(t, 2, res.Batch.Queued)
	require.Equal(t, 0, res.Batch.CachedSkipped)

	items, err := client.LRange(ctx, store.KeyQueueTasks, 0, -1)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestEnqueueBatchSkipsAlreadyCachedCredentials(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	cache := resultcache.New(client, store.ResultTTL, store.BatchStateTTL)
	require.NoError(t, cache.Write(ctx, model.Result{UserID: "u1", Password: "p1", Status: model.StatusValid}))

	res, err := m.EnqueueBatch(ctx, "chat-1", []model.Credential{
		{UserID: "u1", Password: "p1"},
		{UserID: "u2", Password: "p2"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Batch.Queued)
	require.Equal(t, 1, res.Batch.CachedSkipped)
}

func TestEnqueueBatchRejectsEmptyInput(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.EnqueueBatch(context.Background(), "chat-1", nil)
	require.Error(t, err)
}

func TestCancelBatchSetsFlag(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.IsCancelled(ctx, "b1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.CancelBatch(ctx, "b1"))

	ok, err = m.IsCancelled(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecoverZombiesRequeuesUnleasedUncompletedTasks(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	res, err := m.EnqueueBatch(ctx, "chat-1", []model.Credential{{UserID: "u1", Password: "p1"}})
	require.NoError(t, err)
	batchID := res.Batch.BatchID

	require.NoError(t, m.RecoverZombies(ctx, batchID))

	items, err := client.LRange(ctx, store.KeyQueueRetry, 0, -1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var task model.Task
	require.NoError(t, json.Unmarshal(items[0], &task))
	require.Equal(t, 1, task.RetryCount)
	require.Equal(t, "u1", task.UserID)
	require.Equal(t, "p1", task.Password)
	require.NotEmpty(t, task.ProxyID)
}

func TestRecoverZombiesWritesExceededRetriesResultAfterMaxRetries(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()

	res, err := m.EnqueueBatch(ctx, "chat-1", []model.Credential{{UserID: "u1", Password: "p1"}})
	require.NoError(t, err)
	batchID := res.Batch.BatchID

	// manager.go's maxRetries is 3; the 4th recovery attempt exhausts it.
	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecoverZombies(ctx, batchID))
		items, err := client.LRange(ctx, store.KeyQueueRetry, 0, -1)
		require.NoError(t, err)
		require.NoError(t, client.Delete(ctx, store.KeyQueueRetry))
		require.Len(t, items, 1)
	}
	require.NoError(t, m.RecoverZombies(ctx, batchID))

	cache := resultcache.New(client, store.ResultTTL, store.BatchStateTTL)
	result, ok, err := cache.Probe(ctx, model.Credential{UserID: "u1", Password: "p1"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusError, result.Status)
	require.Equal(t, "EXCEEDED_RETRIES", result.ErrorCode)

	counts, err := client.HGetAll(ctx, store.KeyProgressCounts(batchID))
	require.NoError(t, err)
	require.Equal(t, "1", counts["ERROR"])
}
