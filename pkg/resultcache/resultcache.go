// Package resultcache implements the dedup and idempotent-write contract
// for credential check outcomes, backed by pkg/store.
package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/store"
)

// Cache wraps a store.Client with the result read/write contract.
type Cache struct {
	client        store.Client
	resultTTL     time.Duration
	batchStateTTL time.Duration
}

// New builds a Cache over client. resultTTL and batchStateTTL are the
// operator-configurable TTLs for result keys and batch progress/cancellation
// keys respectively (§6's RESULT_TTL / BATCH_STATE_TTL environment
// variables), not the package-level store defaults — those are only the
// fallback config.FromEnv() applies when unset.
func New(client store.Client, resultTTL, batchStateTTL time.Duration) *Cache {
	return &Cache{client: client, resultTTL: resultTTL, batchStateTTL: batchStateTTL}
}

// BatchStateTTL exposes the configured batch-state TTL so pkg/queue.Manager
// can apply the same operator-configured value to batch-tracking keys
// without holding its own independent copy.
func (c *Cache) BatchStateTTL() time.Duration { return c.batchStateTTL }

// probeHit is one status key's outcome, gathered concurrently by Probe.
type probeHit struct {
	result *model.Result
	err    error
}

// Probe checks all four status keys for a credential concurrently and
// returns the first cached result found, if any. Used to skip re-enqueuing
// a credential already checked within the result TTL.
func (c *Cache) Probe(ctx context.Context, cred model.Credential) (*model.Result, bool, error) {
	hits := make([]probeHit, len(store.AllStatuses))
	var wg sync.WaitGroup
	for i, status := range store.AllStatuses {
		wg.Add(1)
		go func(i int, status string) {
			defer wg.Done()
			key := store.KeyResult(status, cred.UserID, cred.Password)
			raw, err := c.client.Get(ctx, key)
			if errors.Is(err, store.ErrNotFound) {
				return
			}
			if err != nil {
				hits[i] = probeHit{err: fmt.Errorf("resultcache: probe %s: %w", key, err)}
				return
			}
			var result model.Result
			if err := json.Unmarshal(raw, &result); err != nil {
				hits[i] = probeHit{err: fmt.Errorf("resultcache: decode %s: %w", key, err)}
				return
			}
			hits[i] = probeHit{result: &result}
		}(i, status)
	}
	wg.Wait()

	for _, hit := range hits {
		if hit.err != nil {
			return nil, false, hit.err
		}
	}
	for _, hit := range hits {
		if hit.result != nil {
			return hit.result, true, nil
		}
	}
	return nil, false, nil
}

// Write stores result keyed by its status and credential, with the
// standard result TTL. The set is read back to confirm it landed; on
// mismatch it retries once using SetNX as an alternative write path
// (covering the case where a concurrent writer raced it) before failing —
// per §4.6 a dropped write here must not fail the task, so callers log
// this as non-fatal rather than aborting.
func (c *Cache) Write(ctx context.Context, result model.Result) error {
	key := store.KeyResult(string(result.Status), result.UserID, result.Password)
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("resultcache: encode: %w", err)
	}

	verified := false
	if err := c.client.Set(ctx, key, payload, c.resultTTL); err == nil {
		if readBack, err := c.client.Get(ctx, key); err == nil && string(readBack) == string(payload) {
			verified = true
		}
	}
	if !verified {
		_, _ = c.client.SetNX(ctx, key, payload, c.resultTTL)
		if readBack, err := c.client.Get(ctx, key); err != nil || string(readBack) != string(payload) {
			return fmt.Errorf("resultcache: write %s did not verify after retry", key)
		}
	}
	return nil
}

// RecordProgress hash-increments batchID's per-status counter, increments
// its overall completed-task counter, and, for VALID results, prepends the
// credential to its valid list. Called alongside Write once the caller
// (the Worker) knows which batch a result belongs to — the result key
// itself carries no batch_id, since a credential cached from one batch
// must dedup against every other batch.
func (c *Cache) RecordProgress(ctx context.Context, batchID string, result model.Result) error {
	if _, err := c.client.HIncrBy(ctx, store.KeyProgressCounts(batchID), string(result.Status), 1); err != nil {
		return fmt.Errorf("resultcache: increment counts for %s: %w", batchID, err)
	}
	if result.Status == model.StatusValid {
		payload, err := json.Marshal(model.Credential{UserID: result.UserID, Password: result.Password})
		if err != nil {
			return fmt.Errorf("resultcache: encode valid entry: %w", err)
		}
		if err := c.client.LPush(ctx, store.KeyProgressValid(batchID), payload); err != nil {
			return fmt.Errorf("resultcache: push valid list for %s: %w", batchID, err)
		}
	}
	if _, err := c.client.Incr(ctx, store.KeyProgressCount(batchID)); err != nil {
		return fmt.Errorf("resultcache: increment count for %s: %w", batchID, err)
	}
	if err := c.client.Expire(ctx, store.KeyProgressCount(batchID), c.batchStateTTL); err != nil {
		return fmt.Errorf("resultcache: set count ttl for %s: %w", batchID, err)
	}
	return nil
}

// TrackCredential records an opaque tracking handle for a credential so a
// later UpdateEvent (a status change on a previously-VALID credential) can
// be correlated back to it.
func (c *Cache) TrackCredential(ctx context.Context, cred model.Credential, handle string) error {
	key := store.KeyMsgCred(cred.UserID, cred.Password)
	return c.client.Set(ctx, key, []byte(handle), store.TrackingTTL)
}

// WaitForResult blocks, polling at interval, until a result appears for
// cred or ctx is cancelled. Used by tests and operational tooling, not the
// worker's own hot path.
func (c *Cache) WaitForResult(ctx context.Context, cred model.Credential, interval time.Duration) (*model.Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if result, ok, err := c.Probe(ctx, cred); err != nil {
			return nil, err
		} else if ok {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
