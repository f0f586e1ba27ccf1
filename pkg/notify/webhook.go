package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook event names.
const (
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// WebhookPayload is the JSON body posted by Webhook.
type WebhookPayload struct {
	Event      string         `json:"event"`
	RunID      string         `json:"run_id"`
	Summary    string         `json:"summary,omitempty"`
	Error      string         `json:"error,omitempty"`
	Written    int            `json:"written"`
	Counts     map[string]int `json:"counts,omitempty"`
	Skipped    int            `json:"skipped"`
	DurationMS int64          `json:"duration_ms"`
}

func webhookPayload(n *Notification) WebhookPayload {
	p := WebhookPayload{
		Event:      EventSyncCompleted,
		RunID:      n.RunID,
		Written:    n.Written,
		Counts:     n.Counts,
		Skipped:    n.Skipped,
		DurationMS: n.Duration.Milliseconds(),
	}
	if n.Failed {
		p.Event = EventSyncFailed
		p.Error = n.Body
	} else {
		p.Summary = n.Body
	}
	return p
}

// Webhook posts a WebhookPayload to a generic HTTP endpoint, signed
// with HMAC-SHA256 when a secret is set.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a new generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(webhookPayload(n))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hexarchive/1.0")

	if w.secret != "" {
		req.Header.Set("X-Signature-256", Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	return nil
}

// Sign returns the X-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
