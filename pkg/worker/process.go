package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/credcheck/pkg/events"
	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/metrics"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/store"
)

// process runs steps a-g of §4.8's task processing sequence for one task.
func (w *Worker) process(ctx context.Context, task model.Task) {
	logger := log.WithWorkerID(w.id)

	// a. cancellation check
	if cancelled, err := w.client.Exists(ctx, store.KeyBatchCancelled(task.BatchID)); err != nil {
		logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("cancellation check failed")
	} else if cancelled {
		return
	}

	// b. acquire lease
	leaseKey := store.KeyJob(task.BatchID, task.TaskID)
	payload, err := json.Marshal(model.Lease{
		BatchID:    task.BatchID,
		TaskID:     task.TaskID,
		WorkerID:   w.id,
		AcquiredAt: time.Now(),
		Payload:    task,
	})
	if err != nil {
		logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to encode lease")
		return
	}
	acquired, err := w.client.SetNX(ctx, leaseKey, payload, leaseTimeout)
	if err != nil {
		logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("lease acquisition failed")
		return
	}
	if !acquired {
		return
	}
	defer w.client.Delete(ctx, leaseKey)

	// c. re-check cancellation after acquiring the lease
	if cancelled, err := w.client.Exists(ctx, store.KeyBatchCancelled(task.BatchID)); err != nil {
		logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("post-lease cancellation check failed")
	} else if cancelled {
		return
	}

	// d. run the protocol driver under a hard wall-clock timeout
	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	timer := metrics.NewTimer()
	result, err := w.runDriver(taskCtx, task)
	timer.ObserveDuration(metrics.TaskProcessingDuration)
	if err != nil {
		logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("protocol run failed")
		return
	}
	result.WorkerID = w.id
	metrics.TasksProcessedTotal.WithLabelValues(string(result.Status)).Inc()

	if task.ProxyID != "" {
		w.proxies.Report(task.ProxyID, proxyOutcomeFor(result))
	}

	// e. write result + progress
	if err := w.cache.Write(ctx, result); err != nil {
		logger.Error().Err(err).Str("task_id", task.TaskID).Msg("result write failed, not fatal to the task")
	}
	if err := w.cache.RecordProgress(ctx, task.BatchID, result); err != nil {
		logger.Error().Err(err).Str("task_id", task.TaskID).Msg("progress recording failed")
	}

	// g. mark the task done so zombie recovery knows this lease's expiry
	// reflects a finished task, not an abandoned one.
	if err := w.client.Set(ctx, store.KeyTaskDone(task.BatchID, task.TaskID), []byte("1"), store.LeaseTTL); err != nil {
		logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to set done marker")
	}

	// f. publish events
	w.broker.Publish(&events.Event{
		Type:    events.EventTaskResult,
		Message: "task finished with status " + string(result.Status),
		Metadata: map[string]string{
			"batch_id": task.BatchID,
			"task_id":  task.TaskID,
			"status":   string(result.Status),
		},
	})
	w.publishOutcome(ctx, task, result)
}

// runDriver obtains a protocol session for task from the worker's factory
// and runs it to completion.
func (w *Worker) runDriver(ctx context.Context, task model.Task) (model.Result, error) {
	runner, err := w.factory(task)
	if err != nil {
		return model.Result{}, err
	}
	return runner.Run(ctx)
}

func proxyOutcomeFor(result model.Result) model.ProxyOutcome {
	switch result.Status {
	case model.StatusError:
		return model.ProxyTransientFail
	default:
		return model.ProxyOK
	}
}

func (w *Worker) publishOutcome(ctx context.Context, task model.Task, result model.Result) {
	logger := log.WithWorkerID(w.id)

	if result.Status == model.StatusValid {
		fe := model.ForwardEvent{
			UserID:    result.UserID,
			Password:  result.Password,
			Capture:   result.Capture,
			IPAddress: result.IPAddress,
			Ts:        time.Now().UnixMilli(),
			WorkerID:  w.id,
			BatchID:   task.BatchID,
		}
		payload, err := json.Marshal(fe)
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode forward event")
			return
		}
		if err := w.client.Publish(ctx, store.ChannelForwardEvents, payload); err != nil {
			logger.Warn().Err(err).Msg("failed to publish forward event")
		}
		return
	}

	handleKey := store.KeyMsgCred(result.UserID, result.Password)
	handleBytes, err := w.client.Get(ctx, handleKey)
	if err != nil {
		// No prior tracking handle: this credential was never VALID before,
		// so there is nothing to report a degradation against.
		return
	}

	ue := model.UpdateEvent{
		UserID:       result.UserID,
		Password:     result.Password,
		NewStatus:    result.Status,
		TrackingCode: string(handleBytes),
		Ts:           time.Now().UnixMilli(),
		WorkerID:     w.id,
		BatchID:      task.BatchID,
	}
	payload, err := json.Marshal(ue)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode update event")
		return
	}
	if err := w.client.Publish(ctx, store.ChannelUpdateEvents, payload); err != nil {
		logger.Warn().Err(err).Msg("failed to publish update event")
	}
}
