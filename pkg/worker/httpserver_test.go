package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/credcheck/pkg/events"
)

func TestEventsHandlerStreamsBrokerEvents(t *testing.T) {
	w := &Worker{id: "w1", broker: events.NewBroker()}
	w.broker.Start()
	defer w.broker.Stop()

	hs := &httpServer{w: w}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hs.eventsHandler(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	w.broker.Publish(&events.Event{Type: events.EventTaskResult, Message: "task finished"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	require.Contains(t, rec.Body.String(), "task.result")
}
