// Package queue implements batch ingestion, task dedup, lease-based task
// dispatch, and zombie-lease recovery on top of pkg/store.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/credcheck/pkg/errs"
	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/metrics"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/proxypool"
	"github.com/cuemby/credcheck/pkg/resultcache"
	"github.com/cuemby/credcheck/pkg/store"
)

// maxRetries is how many times a task may be recovered from a zombied
// lease before it is given up as EXCEEDED_RETRIES.
const maxRetries = 3

// zombieScanInterval is how often RecoverZombies should be invoked by a
// caller-owned scheduler loop.
const zombieScanInterval = 30 * time.Second

// Manager owns batch acceptance, task dedup against the result cache, proxy
// assignment, and zombie-lease recovery.
type Manager struct {
	client  store.Client
	cache   *resultcache.Cache
	proxies *proxypool.Pool
}

// New builds a Manager.
func New(client store.Client, cache *resultcache.Cache, proxies *proxypool.Pool) *Manager {
	return &Manager{client: client, cache: cache, proxies: proxies}
}

// EnqueueResult summarizes the outcome of EnqueueBatch.
type EnqueueResult struct {
	Batch model.Batch
}

// EnqueueBatch accepts a set of credentials for one owner, skips any
// credential already resolved within the result TTL, synthesizes a task
// for every remaining credential, assigns it a proxy, and pushes it onto
// the main task queue.
func (m *Manager) EnqueueBatch(ctx context.Context, ownerChat string, creds []model.Credential) (EnqueueResult, error) {
	if len(creds) == 0 {
		return EnqueueResult{}, errs.New(errs.InvalidInput, fmt.Errorf("batch has no credentials"))
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BatchEnqueueDuration)

	batch := model.Batch{
		BatchID:   uuid.NewString(),
		OwnerChat: ownerChat,
		Total:     len(creds),
		CreatedAt: time.Now(),
	}

	logger := log.WithBatchID(batch.BatchID)

	for _, cred := range creds {
		if _, cached, err := m.cache.Probe(ctx, cred); err != nil {
			return EnqueueResult{}, errs.New(errs.TransientStore, err)
		} else if cached {
			batch.CachedSkipped++
			metrics.TasksDedupedTotal.Inc()
			continue
		}

		task := model.Task{
			TaskID:     uuid.NewString(),
			BatchID:    batch.BatchID,
			UserID:     cred.UserID,
			Password:   cred.Password,
			EnqueuedAt: time.Now(),
		}
		assignment := m.proxies.Assign(task.TaskID)
		task.ProxyID = assignment.ProxyID
		task.ProxyURL = assignment.ProxyURL

		payload, err := json.Marshal(task)
		if err != nil {
			return EnqueueResult{}, fmt.Errorf("queue: encode task: %w", err)
		}
		if err := m.client.RPush(ctx, store.KeyQueueTasks, payload); err != nil {
			return EnqueueResult{}, errs.New(errs.TransientStore, err)
		}

		// Shadow index of every task payload the manager has queued, since
		// the store contract has no expired-key notification to drive zombie
		// recovery off of. The full payload — not just the task ID — is kept
		// here so a recovered zombie can be requeued with its original
		// credential and proxy assignment intact.
		if err := m.client.RPush(ctx, store.KeyBatchTracked(batch.BatchID), payload); err != nil {
			logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to track task for zombie recovery")
		}

		batch.Queued++
		metrics.TasksQueuedTotal.Inc()
	}

	if err := m.client.Expire(ctx, store.KeyBatchTracked(batch.BatchID), m.cache.BatchStateTTL()); err != nil {
		logger.Warn().Err(err).Msg("failed to set tracking index TTL")
	}

	metrics.BatchesTotal.WithLabelValues("queued").Inc()
	logger.Info().Int("total", batch.Total).Int("queued", batch.Queued).Int("cached_skipped", batch.CachedSkipped).Msg("batch enqueued")
	return EnqueueResult{Batch: batch}, nil
}

// CancelBatch flags a batch as cancelled. Workers check this flag before
// processing each task and skip tasks belonging to a cancelled batch.
func (m *Manager) CancelBatch(ctx context.Context, batchID string) error {
	if err := m.client.Set(ctx, store.KeyBatchCancelled(batchID), []byte("1"), m.cache.BatchStateTTL()); err != nil {
		return errs.New(errs.TransientStore, err)
	}
	return nil
}

// IsCancelled reports whether batchID has been flagged cancelled.
func (m *Manager) IsCancelled(ctx context.Context, batchID string) (bool, error) {
	ok, err := m.client.Exists(ctx, store.KeyBatchCancelled(batchID))
	if err != nil {
		return false, errs.New(errs.TransientStore, err)
	}
	return ok, nil
}

// RecoverZombies scans every task this manager has tracked for batchID and
// reclaims any whose lease key has expired (meaning whatever worker held it
// died or was partitioned before completing it): it increments the task's
// retry count and pushes it back onto the retry queue, or reports it
// EXCEEDED_RETRIES if it has already been retried maxRetries times.
//
// Intended to be invoked by a caller-owned ticker at zombieScanInterval.
func (m *Manager) RecoverZombies(ctx context.Context, batchID string) error {
	logger := log.WithBatchID(batchID)

	trackedKey := store.KeyBatchTracked(batchID)
	raw, err := m.client.LRange(ctx, trackedKey, 0, -1)
	if err != nil {
		return errs.New(errs.TransientStore, err)
	}

	for _, taskPayload := range raw {
		var task model.Task
		if err := json.Unmarshal(taskPayload, &task); err != nil {
			logger.Warn().Err(err).Msg("zombie scan: dropping malformed tracked task payload")
			continue
		}
		taskID := task.TaskID
		leaseKey := store.KeyJob(batchID, taskID)

		exists, err := m.client.Exists(ctx, leaseKey)
		if err != nil {
			logger.Warn().Err(err).Str("task_id", taskID).Msg("zombie scan: lease check failed")
			continue
		}
		if exists {
			// Either never leased yet (still queued) or actively held by a
			// live worker; nothing to recover.
			continue
		}

		done, err := m.client.Exists(ctx, store.KeyTaskDone(batchID, taskID))
		if err != nil {
			logger.Warn().Err(err).Str("task_id", taskID).Msg("zombie scan: completion check failed")
			continue
		}
		if done {
			// Already completed; the lease was deleted as part of normal
			// success, not abandonment.
			continue
		}

		if err := m.requeueZombie(ctx, task); err != nil {
			logger.Warn().Err(err).Str("task_id", taskID).Msg("zombie recovery failed")
		}
	}
	return nil
}

// requeueZombie re-pushes task's original payload onto the retry queue with
// its retry count incremented, or, once it has already been retried
// maxRetries times, writes a terminal ERROR Result with error_code
// EXCEEDED_RETRIES and records it in batch progress so the task is still
// counted toward completion.
func (m *Manager) requeueZombie(ctx context.Context, task model.Task) error {
	retryKey := fmt.Sprintf("retrycount:%s:%s", task.BatchID, task.TaskID)
	count, err := m.client.Incr(ctx, retryKey)
	if err != nil {
		return errs.New(errs.TransientStore, err)
	}

	if int(count) > maxRetries {
		metrics.ZombieTasksDropped.Inc()
		result := model.Result{
			UserID:      task.UserID,
			Password:    task.Password,
			Status:      model.StatusError,
			CheckedAtMs: time.Now().UnixMilli(),
			ProxyID:     task.ProxyID,
			ErrorCode:   string(errs.ExceededRetries),
		}
		if err := m.cache.Write(ctx, result); err != nil {
			return fmt.Errorf("queue: write exceeded-retries result: %w", err)
		}
		if err := m.cache.RecordProgress(ctx, task.BatchID, result); err != nil {
			return fmt.Errorf("queue: record exceeded-retries progress: %w", err)
		}
		return errs.New(errs.ExceededRetries, fmt.Errorf("task %s exceeded %d retries", task.TaskID, maxRetries))
	}

	task.RetryCount = int(count)
	task.EnqueuedAt = time.Now()
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode zombie task: %w", err)
	}
	if err := m.client.RPush(ctx, store.KeyQueueRetry, payload); err != nil {
		return err
	}
	metrics.ZombieTasksRequeued.Inc()
	return nil
}

// ZombieScanInterval is exported for schedulers that want to mirror the
// default cadence rather than hardcode it.
func ZombieScanInterval() time.Duration { return zombieScanInterval }
