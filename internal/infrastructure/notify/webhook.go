package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Webhook posts pipeline events to an external endpoint. Notifications are
// advisory; a failed delivery is logged and dropped so it never stalls the
// pipeline.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhook(url string, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type event struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
}

func (w *Webhook) Notify(ctx context.Context, name string, payload map[string]any, userID string) {
	if w.url == "" {
		return
	}
	body, err := json.Marshal(event{Event: name, Payload: payload, UserID: userID})
	if err != nil {
		w.logger.Warn("notify_marshal_failed", "event", name, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("notify_request_failed", "event", name, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("notify_send_failed", "event", name, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("notify_send_failed", "event", name, "error", fmt.Errorf("status %s", resp.Status))
	}
}
