// Package health tracks consecutive-failure-based healthy/unhealthy status
// for a monitored target, independent of what "checking" that target means.
// pkg/proxypool is the one consumer: each pooled proxy gets its own Status,
// flipped unhealthy after a run of consecutive transient failures and
// reset by success, exactly as Report/isHealthy in pool.go use it.
package health

import "time"

// Result is the outcome of a single check of the monitored target.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
}

// Config bounds how many consecutive failures flip Status unhealthy.
type Config struct {
	// Retries is the number of consecutive failures before marking unhealthy.
	Retries int
}

// Status tracks the current health status of a monitored target.
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks.
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks.
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last check.
	LastCheck time.Time

	// LastResult is the result of the last check.
	LastResult Result

	// Healthy indicates if the target is currently considered healthy.
	Healthy bool

	// StartedAt is when health tracking started for this target.
	StartedAt time.Time
}

// NewStatus creates a new Status, healthy until proven otherwise.
func NewStatus() *Status {
	return &Status{
		Healthy:   true,
		StartedAt: time.Now(),
	}
}

// Update folds a new check result into the status, edge-triggering Healthy
// only once ConsecutiveFailures reaches config.Retries, so a single blip
// doesn't flip a target unhealthy.
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		if s.ConsecutiveFailures >= config.Retries {
			s.Healthy = false
		}
	}
}
