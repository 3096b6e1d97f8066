package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/store"
	"github.com/cuemby/credcheck/pkg/worker"
)

func TestStartRegistersAndStopUnregisters(t *testing.T) {
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{result: model.Result{Status: model.StatusValid}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		ok, err := client.Exists(context.Background(), store.KeyWorkerInfo(w.ID()))
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond, "worker should register itself on start")

	require.NoError(t, w.Stop(context.Background()))
	cancel()
	<-startErr

	ok, err := client.Exists(context.Background(), store.KeyWorkerInfo(w.ID()))
	require.NoError(t, err)
	require.False(t, ok, "worker should deregister itself on stop")
}

func TestHeartbeatPublishesLivenessRecord(t *testing.T) {
	w, client := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{result: model.Result{Status: model.StatusValid}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx) }()
	defer func() {
		_ = w.Stop(context.Background())
		cancel()
	}()

	require.Eventually(t, func() bool {
		ok, err := client.Exists(context.Background(), store.KeyWorkerHeartbeat(w.ID()))
		return err == nil && ok
	}, 3*time.Second, 20*time.Millisecond, "worker should publish a heartbeat record")
}
