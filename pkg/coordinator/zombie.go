package coordinator

import (
	"context"
	"time"

	"github.com/cuemby/credcheck/pkg/events"
	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/queue"
)

// zombieLoop runs RecoverZombies for every active batch on a fixed
// interval, but only while this instance holds the failover lease. Two
// coordinators racing RecoverZombies for the same batch concurrently would
// double-requeue a recovered task, so exclusivity here is load-bearing,
// not an optimization.
func (c *Coordinator) zombieLoop(ctx context.Context) {
	defer c.doneWG.Done()

	interval := c.cfg.ZombieScanInterval
	if interval <= 0 {
		interval = queue.ZombieScanInterval()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("coordinator")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if !c.IsLeader() {
				continue
			}

			c.mu.RLock()
			batchIDs := make([]string, 0, len(c.activeBatches))
			for id := range c.activeBatches {
				batchIDs = append(batchIDs, id)
			}
			c.mu.RUnlock()

			for _, batchID := range batchIDs {
				if err := c.queue.RecoverZombies(ctx, batchID); err != nil {
					logger.Warn().Err(err).Str("batch_id", batchID).Msg("zombie recovery failed")
					continue
				}
				c.broker.Publish(&events.Event{
					Type:     events.EventTaskZombied,
					Message:  "zombie recovery scan completed",
					Metadata: map[string]string{"batch_id": batchID},
				})
			}
		}
	}
}
