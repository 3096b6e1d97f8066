package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/store"
)

// heartbeatLoop overwrites this worker's heartbeat record on a fixed
// ticker, kept verbatim in shape from the teacher's own heartbeat
// goroutine pattern.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	defer w.doneWG.Done()

	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	logger := log.WithWorkerID(w.id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.sendHeartbeat(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to send heartbeat")
			}
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) error {
	w.mu.Lock()
	hb := model.Heartbeat{
		WorkerID:        w.id,
		Timestamp:       time.Now(),
		ActiveTaskCount: len(w.activeTasks),
		TasksCompleted:  w.completed,
		Utilization:     float64(len(w.activeTasks)) / float64(w.cfg.WorkerConcurrency),
	}
	for id := range w.activeTasks {
		hb.CurrentTaskIDs = append(hb.CurrentTaskIDs, id)
	}
	w.mu.Unlock()

	payload, err := json.Marshal(hb)
	if err != nil {
		return err
	}

	if err := w.client.Set(ctx, store.KeyWorkerHeartbeat(w.id), payload, store.HeartbeatTTL); err != nil {
		return err
	}
	return w.client.Publish(ctx, store.ChannelWorkerHeartbeats, payload)
}
