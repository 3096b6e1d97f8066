// Package proxypool assigns outbound proxies to tasks and tracks their
// health, adapting the consecutive-failure/cooldown pattern from pkg/health
// to a round-robin pool instead of a single monitored target.
package proxypool

import (
	"sync"
	"time"

	"github.com/cuemby/credcheck/pkg/health"
	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/metrics"
	"github.com/cuemby/credcheck/pkg/model"
)

// maxConsecutiveTransient is how many transient failures in a row mark a
// proxy unhealthy; any single permanent failure does so immediately.
const maxConsecutiveTransient = 3

// cooldown is how long an unhealthy proxy is skipped before being reprobed.
const cooldown = 60 * time.Second

// fairnessBand bounds how far any one proxy's assignment count may drift
// from the pool average under round-robin assignment (±10%).
const fairnessBand = 0.10

type entry struct {
	id     string
	url    string
	status *health.Status
	config health.Config

	mu              sync.Mutex
	assignedCount   int64
	cooldownUntil   time.Time
}

// Pool assigns proxies round-robin, tracks per-proxy health, and falls back
// to a direct (no-proxy) assignment when every proxy is unhealthy.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	directWarned time.Time
}

// NewPool builds a Pool from a static list of "id=url" proxy endpoints.
func NewPool(proxies map[string]string) *Pool {
	p := &Pool{}
	for id, url := range proxies {
		p.entries = append(p.entries, &entry{
			id:     id,
			url:    url,
			status: health.NewStatus(),
			config: health.Config{Retries: maxConsecutiveTransient},
		})
	}
	return p
}

// Assignment is what Assign hands back to a caller.
type Assignment struct {
	ProxyID  string
	ProxyURL string
	Direct   bool
}

// Assign picks the next healthy proxy in round-robin order, respecting the
// ±10% fairness band around the pool's average assignment count. If every
// proxy is currently unhealthy, it returns a direct assignment and logs a
// warning at most once per cooldown window.
func (p *Pool) Assign(taskID string) Assignment {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return p.directFallback()
	}

	avg := p.averageAssigned()
	n := len(p.entries)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		e := p.entries[idx]
		if !p.isHealthy(e) {
			continue
		}
		e.mu.Lock()
		within := float64(e.assignedCount) <= avg*(1+fairnessBand)
		e.mu.Unlock()
		if !within {
			continue
		}
		p.next = (idx + 1) % n
		e.mu.Lock()
		e.assignedCount++
		e.mu.Unlock()
		metrics.ProxyAssignmentsTotal.WithLabelValues(e.id, "false").Inc()
		return Assignment{ProxyID: e.id, ProxyURL: e.url}
	}

	// No proxy satisfies the fairness band this round; relax it and take
	// the first healthy one so the pool never stalls entirely.
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		e := p.entries[idx]
		if !p.isHealthy(e) {
			continue
		}
		p.next = (idx + 1) % n
		e.mu.Lock()
		e.assignedCount++
		e.mu.Unlock()
		metrics.ProxyAssignmentsTotal.WithLabelValues(e.id, "false").Inc()
		return Assignment{ProxyID: e.id, ProxyURL: e.url}
	}

	return p.directFallback()
}

func (p *Pool) averageAssigned() float64 {
	var total int64
	for _, e := range p.entries {
		e.mu.Lock()
		total += e.assignedCount
		e.mu.Unlock()
	}
	return float64(total) / float64(len(p.entries))
}

func (p *Pool) isHealthy(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Healthy {
		return true
	}
	if time.Now().After(e.cooldownUntil) {
		// Cooldown elapsed: give the proxy another chance rather than
		// permanently banning it. A subsequent Report call will confirm
		// or reject this probe.
		e.status.Healthy = true
		e.status.ConsecutiveFailures = 0
		return true
	}
	return false
}

func (p *Pool) directFallback() Assignment {
	if time.Since(p.directWarned) > cooldown {
		log.WithComponent("proxypool").Warn().Msg("no healthy proxy available, falling back to direct connection")
		p.directWarned = time.Now()
	}
	metrics.ProxyAssignmentsTotal.WithLabelValues("", "true").Inc()
	return Assignment{Direct: true}
}

// Report records the outcome of using a proxy for one request.
func (p *Pool) Report(proxyID string, outcome model.ProxyOutcome) {
	p.mu.Lock()
	var e *entry
	for _, candidate := range p.entries {
		if candidate.id == proxyID {
			e = candidate
			break
		}
	}
	p.mu.Unlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	result := health.Result{Healthy: outcome == model.ProxyOK, CheckedAt: time.Now()}
	e.status.Update(result, e.config)

	if outcome == model.ProxyPermanentFail {
		e.status.Healthy = false
	}
	if !e.status.Healthy {
		e.cooldownUntil = time.Now().Add(cooldown)
	}
	e.mu.Unlock()

	metrics.ProxiesHealthy.Set(float64(p.countHealthy()))
}

func (p *Pool) countHealthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, candidate := range p.entries {
		candidate.mu.Lock()
		if candidate.status.Healthy {
			n++
		}
		candidate.mu.Unlock()
	}
	return n
}
