package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/credcheck/pkg/metrics"
)

// statusResponse reports this worker's live counters for operators polling
// a single instance directly rather than through Prometheus.
type statusResponse struct {
	WorkerID     string    `json:"worker_id"`
	ActiveTasks  int       `json:"active_tasks"`
	Concurrency  int       `json:"concurrency"`
	Completed    int64     `json:"completed"`
	Timestamp    time.Time `json:"timestamp"`
}

// httpServer exposes /health, /ready, /status and /metrics for one worker
// process, per §4.8's optional HTTP surface.
type httpServer struct {
	w      *Worker
	server *http.Server
}

func newHTTPServer(w *Worker, addr string) *httpServer {
	mux := http.NewServeMux()
	hs := &httpServer{w: w}

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
	hs.w.mu.Lock()
	active := len(hs.w.activeTasks)
	completed := hs.w.completed
	hs.w.mu.Unlock()

	resp := statusResponse{
		WorkerID:    hs.w.id,
		ActiveTasks: active,
		Concurrency: hs.w.cfg.WorkerConcurrency,
		Completed:   completed,
		Timestamp:   time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// eventsHandler streams this worker's internal task-result event fan-out
// as server-sent events, mirroring the coordinator's /events endpoint.
func (hs *httpServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := hs.w.broker.Subscribe()
	defer hs.w.broker.Unsubscribe(sub)

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
