package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/health"
)

func TestNewStatusStartsHealthy(t *testing.T) {
	s := health.NewStatus()
	require.True(t, s.Healthy)
	require.Zero(t, s.ConsecutiveFailures)
}

func TestUpdateFlipsUnhealthyAfterConsecutiveFailures(t *testing.T) {
	s := health.NewStatus()
	cfg := health.Config{Retries: 3}

	for i := 0; i < 2; i++ {
		s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
		require.True(t, s.Healthy, "should stay healthy before reaching the retry threshold")
	}

	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	require.False(t, s.Healthy, "should flip unhealthy once consecutive failures reach Retries")
}

func TestUpdateResetsFailureStreakOnSuccess(t *testing.T) {
	s := health.NewStatus()
	cfg := health.Config{Retries: 2}

	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	s.Update(health.Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	require.True(t, s.Healthy)
	require.Zero(t, s.ConsecutiveFailures)

	s.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	require.True(t, s.Healthy, "a single failure after a reset should not immediately flip unhealthy")
}
