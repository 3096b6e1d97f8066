/*
Package health tracks edge-triggered healthy/unhealthy status from a stream
of check results, independent of what a "check" means to the caller.

pkg/proxypool is the one consumer: NewPool gives each proxy its own Status
and a Config{Retries: maxConsecutiveTransient}; every call to Pool.Report
folds a Result into that Status via Update. A proxy flips unhealthy only
after Retries consecutive failures, so one transient blip never takes it out
of rotation, and a single success immediately resets the failure streak. A
permanent failure (outcome == model.ProxyPermanentFail) is handled by the
caller setting Healthy false directly rather than waiting on the streak.

# Usage

	status := health.NewStatus()
	cfg := health.Config{Retries: 3}

	status.Update(health.Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	if !status.Healthy {
		// take the target out of rotation
	}
*/
package health
