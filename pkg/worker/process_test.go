package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/config"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/pow"
	"github.com/cuemby/credcheck/pkg/proxypool"
	"github.com/cuemby/credcheck/pkg/resultcache"
	"github.com/cuemby/credcheck/pkg/store"
	"github.com/cuemby/credcheck/pkg/worker"
)

// fakeRunner returns a fixed result (or error) regardless of task content.
type fakeRunner struct {
	result model.Result
	err    error
}

func (r fakeRunner) Run(ctx context.Context) (model.Result, error) {
	return r.result, r.err
}

func newTestWorker(t *testing.T, factory worker.SessionFactory) (*worker.Worker, store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := store.NewFromUniversalClient(rdb)
	cache := resultcache.New(client, store.ResultTTL, store.BatchStateTTL)
	pool := proxypool.NewPool(map[string]string{"p1": "http://p1"})
	powClient := pow.NewServiceClient("")

	cfg := config.Config{
		WorkerConcurrency: 2,
		TaskTimeout:       2 * time.Second,
		HeartbeatInterval: time.Second,
		WorkerHTTPPort:    "", // disable the HTTP surface in tests
	}

	w := worker.New(cfg, client, cache, pool, powClient, factory)
	return w, client
}

func TestProcessWritesResultAndReleasesLease(t *testing.T) {
	want := model.Result{UserID: "u1", Password: "p1", Status: model.StatusInvalid}
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{result: want}, nil
	})

	task := model.Task{TaskID: "t1", BatchID: "b1", UserID: "u1", Password: "p1"}
	worker.ExportedProcess(w, context.Background(), task)

	ctx := context.Background()
	held, err := client.Exists(ctx, store.KeyJob(task.BatchID, task.TaskID))
	require.NoError(t, err)
	require.False(t, held, "lease must be released once the task finishes")

	done, err := client.Exists(ctx, store.KeyTaskDone(task.BatchID, task.TaskID))
	require.NoError(t, err)
	require.True(t, done, "the done marker must be set on completion")

	raw, err := client.Get(ctx, store.KeyResult(string(want.Status), want.UserID, want.Password))
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestProcessSkipsCancelledBatch(t *testing.T) {
	calls := 0
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		calls++
		return fakeRunner{result: model.Result{Status: model.StatusValid}}, nil
	})

	task := model.Task{TaskID: "t1", BatchID: "b1", UserID: "u1", Password: "p1"}
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, store.KeyBatchCancelled(task.BatchID), []byte("1"), time.Minute))

	worker.ExportedProcess(w, ctx, task)

	require.Equal(t, 0, calls, "a cancelled batch's task must never reach the protocol driver")
}

func TestProcessDropsTaskWhenLeaseAlreadyHeld(t *testing.T) {
	calls := 0
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		calls++
		return fakeRunner{result: model.Result{Status: model.StatusValid}}, nil
	})

	task := model.Task{TaskID: "t1", BatchID: "b1", UserID: "u1", Password: "p1"}
	ctx := context.Background()
	ok, err := client.SetNX(ctx, store.KeyJob(task.BatchID, task.TaskID), []byte("held"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	worker.ExportedProcess(w, ctx, task)

	require.Equal(t, 0, calls, "a task whose lease is already held must not be processed twice")
}

func TestProcessPublishesForwardEventOnValid(t *testing.T) {
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{result: model.Result{UserID: "u1", Password: "p1", Status: model.StatusValid}}, nil
	})

	ctx := context.Background()
	sub, err := client.Subscribe(ctx, store.ChannelForwardEvents)
	require.NoError(t, err)
	defer sub.Close()

	task := model.Task{TaskID: "t1", BatchID: "b1", UserID: "u1", Password: "p1"}
	worker.ExportedProcess(w, ctx, task)

	select {
	case msg := <-sub.Channel():
		require.Equal(t, store.ChannelForwardEvents, msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a forward event to be published")
	}
}
