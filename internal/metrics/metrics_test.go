package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.InsertsTotal.Add(3)
	m.QueueDepth.Set(7)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "cablewatch_inserts_total 3") {
		t.Errorf("inserts counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "cablewatch_queue_depth 7") {
		t.Errorf("queue depth gauge missing from exposition:\n%s", body)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0") }()

	// Give the listener a moment to come up before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeReturnsListenError(t *testing.T) {
	m := New()

	done := make(chan error, 1)
	go func() { done <- m.Serve(context.Background(), "256.0.0.1:bad") }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a listen error for an invalid address")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return the listen error")
	}
}
