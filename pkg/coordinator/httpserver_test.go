package coordinator

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
	c := &Coordinator{id: "c1", broker: events.NewBroker()}
	c.broker.Start()
	defer c.broker.Stop()

	hs := &httpServer{c: c}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hs.eventsHandler(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	c.broker.Publish(&events.Event{Type: events.EventBatchAccepted, Message: "batch accepted"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	require.Contains(t, rec.Body.String(), "batch.accepted")
}
