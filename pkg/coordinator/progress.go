package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/metrics"
	"github.com/cuemby/credcheck/pkg/model"
	"github.com/cuemby/credcheck/pkg/store"
)

// progressLoop delivers a progress update for every active batch no more
// often than ProgressInterval, and only while this instance holds the
// failover lease — losing the lease between ticks simply means the next
// tick's leader check skips the work, per §4.9's "loss of the lease causes
// immediate stop of those duties".
func (c *Coordinator) progressLoop(ctx context.Context) {
	defer c.doneWG.Done()

	interval := c.cfg.ProgressInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.IsLeader() {
				c.publishProgressForActiveBatches(ctx)
			}
		}
	}
}

func (c *Coordinator) publishProgressForActiveBatches(ctx context.Context) {
	logger := log.WithComponent("coordinator")

	c.mu.RLock()
	batchIDs := make([]string, 0, len(c.activeBatches))
	for id := range c.activeBatches {
		batchIDs = append(batchIDs, id)
	}
	c.mu.RUnlock()

	for _, batchID := range batchIDs {
		timer := metrics.NewTimer()
		progress, err := c.readProgress(ctx, batchID)
		timer.ObserveDuration(metrics.BatchProgressAggregationDuration)
		if err != nil {
			logger.Warn().Err(err).Str("batch_id", batchID).Msg("progress read failed")
			continue
		}

		if c.submitter != nil {
			deliverWithRetry(ctx, logger, "progress", func(ctx context.Context) error {
				return c.submitter.DeliverProgress(ctx, progress)
			})
		}
	}
}

// readProgress gathers progress:{batch_id}:count, the per-status counts
// hash, and the head of the valid list directly from the store, so every
// coordinator instance (leader or not) would compute the same snapshot.
func (c *Coordinator) readProgress(ctx context.Context, batchID string) (Progress, error) {
	countRaw, err := c.client.HGetAll(ctx, store.KeyProgressCounts(batchID))
	if err != nil {
		return Progress{}, err
	}
	counts := make(map[string]int64, len(countRaw))
	for status, v := range countRaw {
		n, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			continue
		}
		counts[status] = n
	}

	var total int64
	if raw, err := c.client.Get(ctx, store.KeyProgressCount(batchID)); err == nil {
		total, _ = strconv.ParseInt(string(raw), 10, 64)
	} else if !errors.Is(err, store.ErrNotFound) {
		return Progress{}, err
	}

	validRaw, err := c.client.LRange(ctx, store.KeyProgressValid(batchID), 0, 9)
	if err != nil {
		return Progress{}, err
	}
	var recent []model.Credential
	for _, entry := range validRaw {
		var cred model.Credential
		if jsonErr := json.Unmarshal(entry, &cred); jsonErr == nil {
			recent = append(recent, cred)
		}
	}

	return Progress{
		BatchID:     batchID,
		Completed:   total,
		Counts:      counts,
		RecentValid: recent,
	}, nil
}
