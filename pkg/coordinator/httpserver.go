package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/credcheck/pkg/metrics"
)

// statusResponse reports this coordinator instance's leadership state and
// live-worker count for operators polling a single instance directly.
type statusResponse struct {
	CoordinatorID string    `json:"coordinator_id"`
	IsLeader      bool      `json:"is_leader"`
	LiveWorkers   int       `json:"live_workers"`
	ActiveBatches int       `json:"active_batches"`
	Timestamp     time.Time `json:"timestamp"`
}

type httpServer struct {
	c      *Coordinator
	server *http.Server
}

func newHTTPServer(c *Coordinator, addr string) *httpServer {
	mux := http.NewServeMux()
	hs := &httpServer{c: c}

	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/status", hs.statusHandler)
	mux.HandleFunc("/events", hs.eventsHandler)

	hs.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs
}

func (hs *httpServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	hs.c.mu.RLock()
	activeBatches := len(hs.c.activeBatches)
	liveWorkers := len(hs.c.liveWorkers)
	hs.c.mu.RUnlock()

	resp := statusResponse{
		CoordinatorID: hs.c.id,
		IsLeader:      hs.c.IsLeader(),
		LiveWorkers:   liveWorkers,
		ActiveBatches: activeBatches,
		Timestamp:     time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// eventsHandler streams the internal event broker's fan-out as
// server-sent events, so an operator can watch batch/worker/leadership
// activity on one coordinator instance without a Redis client of their own.
func (hs *httpServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := hs.c.broker.Subscribe()
	defer hs.c.broker.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func (hs *httpServer) Start() error {
	err := hs.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (hs *httpServer) Stop(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}
