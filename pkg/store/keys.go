package store

import (
	"fmt"
	"time"
)

// Key namespace, bit-exact per the cross-deployment key schema contract.
// Changing any of these formats requires a data migration.
const (
	KeyQueueTasks = "queue:tasks"
	KeyQueueRetry = "queue:retry"

	ChannelForwardEvents    = "forward_events"
	ChannelUpdateEvents     = "update_events"
	ChannelWorkerHeartbeats = "worker_heartbeats"
	ChannelConfigUpdates    = "config_updates"
)

// TTL defaults for the keyed records below.
const (
	LeaseTTL       = 300 * time.Second
	ResultTTL      = 30 * 24 * time.Hour
	BatchStateTTL  = 48 * time.Hour
	HeartbeatTTL   = 30 * time.Second
	TrackingTTL    = 30 * 24 * time.Hour
	CoordinatorTTL = 30 * time.Second
)

// KeyJob returns the lease record key for a task.
func KeyJob(batchID, taskID string) string {
	return fmt.Sprintf("job:%s:%s", batchID, taskID)
}

// KeyResult returns the cached-result key for one status and credential.
func KeyResult(status, userID, password string) string {
	return fmt.Sprintf("result:%s:%s:%s", status, userID, password)
}

// KeyProgressCount returns the completed-task counter key for a batch.
func KeyProgressCount(batchID string) string {
	return fmt.Sprintf("progress:%s:count", batchID)
}

// KeyProgressCounts returns the per-status counts map key for a batch.
func KeyProgressCounts(batchID string) string {
	return fmt.Sprintf("progress:%s:counts", batchID)
}

// KeyProgressValid returns the serialized-VALID-entries list key for a batch.
func KeyProgressValid(batchID string) string {
	return fmt.Sprintf("progress:%s:valid", batchID)
}

// KeyBatchCancelled returns the cancellation-flag key for a batch.
func KeyBatchCancelled(batchID string) string {
	return fmt.Sprintf("batch:%s:cancelled", batchID)
}

// KeyWorkerInfo returns the registration key for a worker.
func KeyWorkerInfo(workerID string) string {
	return fmt.Sprintf("worker:%s:info", workerID)
}

// KeyWorkerHeartbeat returns the liveness key for a worker.
func KeyWorkerHeartbeat(workerID string) string {
	return fmt.Sprintf("worker:%s:heartbeat", workerID)
}

// KeyMsgCred returns the opaque tracking-handle key for a credential.
func KeyMsgCred(userID, password string) string {
	return fmt.Sprintf("msg:cred:%s:%s", userID, password)
}

// KeyBatchTracked returns the shadow index of task payloads the Job Queue
// Manager has queued for a batch, used to drive zombie recovery since the
// store contract has no native expired-key notification primitive.
func KeyBatchTracked(batchID string) string {
	return fmt.Sprintf("tracked:%s", batchID)
}

// KeyCoordinatorLease returns the cooperative-failover lease key shared by
// all coordinator instances racing for leadership.
func KeyCoordinatorLease() string {
	return "coordinator:lease"
}

// KeyTaskDone returns the short-lived completion marker a worker sets when
// it finishes a task, letting zombie recovery distinguish "lease expired
// because the worker died" from "lease expired because the worker finished
// and deleted it right at the scan boundary".
func KeyTaskDone(batchID, taskID string) string {
	return fmt.Sprintf("done:%s:%s", batchID, taskID)
}

// AllStatuses enumerates the statuses probed during deduplication.
var AllStatuses = []string{"VALID", "INVALID", "BLOCKED", "ERROR"}
