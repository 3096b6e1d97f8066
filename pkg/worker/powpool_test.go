package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/protocol"
	"github.com/cuemby/credcheck/pkg/worker"
)

func TestPoWComputerRoutesThroughDedicatedPool(t *testing.T) {
	w, _ := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{}, nil
	})

	var computer protocol.PoWComputer = w.PoWComputer()
	require.NotNil(t, computer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Even with no remote PoW service configured, Compute must still
	// produce a usable cres via local solve or the random fallback rather
	// than stalling forever, confirming the pool actually drives the call
	// through to the underlying pow.ServiceClient.
	cres, err := computer.Compute(ctx, "??", "key", 1)
	require.NoError(t, err)
	require.NotEmpty(t, cres)
}

func TestPoWComputerRespectsContextCancellation(t *testing.T) {
	w, _ := newTestWorker(t, func(model.Task) (worker.Runner, error) {
		return fakeRunner{}, nil
	})

	computer := w.PoWComputer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := computer.Compute(ctx, "??", "key", 1)
	require.Error(t, err)
}
