package pow

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cuemby/credcheck/pkg/log"
	"github.com/cuemby/credcheck/pkg/metrics"
)

const (
	cacheSize = 1000
	cacheTTL  = 5 * time.Minute
	remoteTimeout = 25 * time.Second
	backoffInitial = 500 * time.Millisecond
	maxRetries     = 1
)

// cacheKey identifies a puzzle for memoization. Two requests with the same
// mask/key/seed are the same puzzle.
type cacheKey struct {
	mask string
	key  string
	seed int64
}

// Stats exposes a snapshot of ServiceClient's counters, read without
// locking beyond the atomics backing them.
type Stats struct {
	CacheHits    int64
	RemoteHits   int64
	LocalSolves  int64
	RandomCres   int64
	Failures     int64
}

// ServiceClient computes proof-of-work suffixes (cres) for login
// challenges, preferring a remote PoW service and falling back to local
// computation when the service is unreachable or slow.
type ServiceClient struct {
	httpClient *http.Client
	remoteURL  string
	cache      *lru.LRU[cacheKey, string]

	cacheHits   atomic.Int64
	remoteHits  atomic.Int64
	localSolves atomic.Int64
	randomCres  atomic.Int64
	failures    atomic.Int64
}

// NewServiceClient builds a client targeting remoteURL; an empty remoteURL
// disables the remote step and goes straight to local solving.
func NewServiceClient(remoteURL string) *ServiceClient {
	return &ServiceClient{
		httpClient: &http.Client{Timeout: remoteTimeout},
		remoteURL:  remoteURL,
		cache:      lru.NewLRU[cacheKey, string](cacheSize, nil, cacheTTL),
	}
}

type computeRequest struct {
	Mask string `json:"mask"`
	Key  string `json:"key"`
	Seed int64  `json:"seed"`
}

type computeResponse struct {
	Cres string `json:"cres"`
}

// Compute returns a cres (candidate suffix) satisfying the given puzzle.
// Order of attempts: reject trivially-impossible input, check the cache,
// call the remote PoW service with retry, fall back to a local solve, and
// as a last resort return a random suffix so the caller always has
// something to submit rather than blocking forever.
func (c *ServiceClient) Compute(ctx context.Context, mask, key string, seed int64) (string, error) {
	timer := metrics.NewTimer()

	if len(mask) > MaxMaskLen {
		c.failures.Add(1)
		return "", ErrMaskTooLong
	}

	if mask == "" || key == "" || seed == 0 {
		log.WithComponent("pow").Warn().
			Str("mask", mask).Str("key", key).Int64("seed", seed).
			Msg("rejecting trivially invalid pow input, degrading to random cres")
		cres, err := randomSuffix()
		if err != nil {
			c.failures.Add(1)
			return "", err
		}
		c.randomCres.Add(1)
		c.recordOutcome(timer, "random")
		return cres, nil
	}

	ck := cacheKey{mask: mask, key: key, seed: seed}
	if cres, ok := c.cache.Get(ck); ok {
		c.cacheHits.Add(1)
		c.recordOutcome(timer, "cache")
		return cres, nil
	}

	if c.remoteURL != "" {
		if cres, err := c.computeRemote(ctx, mask, key, seed); err == nil {
			c.remoteHits.Add(1)
			c.cache.Add(ck, cres)
			c.recordOutcome(timer, "remote")
			return cres, nil
		}
	}

	if cres, err := Solve(mask, key, seed); err == nil {
		c.localSolves.Add(1)
		c.cache.Add(ck, cres)
		c.recordOutcome(timer, "local")
		return cres, nil
	}

	cres, err := randomSuffix()
	if err != nil {
		c.failures.Add(1)
		return "", err
	}
	c.randomCres.Add(1)
	c.recordOutcome(timer, "random")
	return cres, nil
}

func (c *ServiceClient) recordOutcome(timer *metrics.Timer, source string) {
	timer.ObserveDurationVec(metrics.PoWComputeDuration, source)
	metrics.PoWOutcomesTotal.WithLabelValues(source).Inc()
}

func (c *ServiceClient) computeRemote(ctx context.Context, mask, key string, seed int64) (string, error) {
	body, err := json.Marshal(computeRequest{Mask: mask, Key: key, Seed: seed})
	if err != nil {
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitial
	retrier := backoff.WithMaxRetries(bo, maxRetries)

	var cres string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remoteURL+"/compute", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("pow service: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("pow service: status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		var out computeResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return backoff.Permanent(err)
		}
		cres = out.Cres
		return nil
	}

	if err := backoff.Retry(op, retrier); err != nil {
		return "", err
	}
	return cres, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, suffixLen)
	for i, b := range buf {
		out[i] = alphabet[b%byte(len(alphabet))]
	}
	return string(out), nil
}

// Stats returns a point-in-time snapshot of the client's counters.
func (c *ServiceClient) Stats() Stats {
	return Stats{
		CacheHits:   c.cacheHits.Load(),
		RemoteHits:  c.remoteHits.Load(),
		LocalSolves: c.localSolves.Load(),
		RandomCres:  c.randomCres.Load(),
		Failures:    c.failures.Load(),
	}
}
