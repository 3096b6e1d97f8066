package worker

import (
	"context"

	"github.com/cuemby/credcheck/pkg/pow"
)

// powJob is one queued solve request.
type powJob struct {
	ctx    context.Context
	mask   string
	key    string
	seed   int64
	result chan<- powResult
}

type powResult struct {
	cres string
	err  error
}

// powWorkerPool is a fixed-size pool of goroutines dedicated to fallback
// PoW solves, kept distinct from the per-task I/O goroutines spawned by
// Start's main loop so a burst of slow local solves cannot starve task
// dispatch.
type powWorkerPool struct {
	client *pow.ServiceClient
	jobs   chan powJob
	stopCh chan struct{}
}

// newPowWorkerPool starts size worker goroutines, each pulling jobs off a
// shared channel and delegating to client.Compute.
func newPowWorkerPool(client *pow.ServiceClient, size int) *powWorkerPool {
	if size < 1 {
		size = 1
	}
	p := &powWorkerPool{
		client: client,
		jobs:   make(chan powJob, size),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

func (p *powWorkerPool) loop() {
	for {
		select {
		case <-p.stopCh:
			return
		case job := <-p.jobs:
			cres, err := p.client.Compute(job.ctx, job.mask, job.key, job.seed)
			job.result <- powResult{cres: cres, err: err}
		}
	}
}

// Compute satisfies protocol.PoWComputer by routing the solve through the
// dedicated pool rather than the caller's own goroutine.
func (p *powWorkerPool) Compute(ctx context.Context, mask, key string, seed int64) (string, error) {
	resCh := make(chan powResult, 1)
	job := powJob{ctx: ctx, mask: mask, key: key, seed: seed, result: resCh}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.stopCh:
		return "", context.Canceled
	}

	select {
	case res := <-resCh:
		return res.cres, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop halts the pool's workers. Any jobs already pulled from the channel
// run to completion; queued jobs are abandoned.
func (p *powWorkerPool) Stop() {
	close(p.stopCh)
}
