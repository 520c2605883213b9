package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyPostsEvent(t *testing.T) {
	var received event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode event: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	NewWebhook(server.URL, discardLogger()).Notify(context.Background(), "integration_done", map[string]any{"scan_id": "s1"}, "u1")

	if received.Event != "integration_done" || received.UserID != "u1" {
		t.Fatalf("unexpected event %+v", received)
	}
	if received.Payload["scan_id"] != "s1" {
		t.Fatalf("expected payload forwarded, got %v", received.Payload)
	}
}

func TestNotifyFailureDoesNotPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	// Delivery failures are logged and dropped.
	NewWebhook(server.URL, discardLogger()).Notify(context.Background(), "integration_done", nil, "u1")
}

func TestNotifyNoURLIsNoop(t *testing.T) {
	NewWebhook("", discardLogger()).Notify(context.Background(), "integration_done", nil, "u1")
}
