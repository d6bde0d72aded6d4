package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbrandao/opchat/internal/models"
)

// Notifier posts order events to an external webhook. Delivery is
// fire-and-forget: failures are logged, never surfaced to the caller.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier returns nil when url is empty so callers can skip
// notification wiring entirely.
func NewNotifier(url string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// OrderCreated announces a new order in the background.
func (n *Notifier) OrderCreated(o *models.Order) {
	payload := map[string]any{
		"event": "order.created",
		"order": o,
	}
	go n.post(payload)
}

// PartsCreated announces newly registered parts in the background.
func (n *Notifier) PartsCreated(orderCode string, parts []*models.Part) {
	payload := map[string]any{
		"event":      "parts.created",
		"order_code": orderCode,
		"parts":      parts,
	}
	go n.post(payload)
}

func (n *Notifier) post(payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("webhook payload marshal failed", "error", err)
		return
	}
	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Warn("webhook delivery failed", "url", n.url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("webhook rejected", "url", n.url, "status", resp.StatusCode)
	}
}
