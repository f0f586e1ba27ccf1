package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Slack sends notifications via Slack incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(slackPayload(n))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook status %d", resp.StatusCode)
	}

	return nil
}

// slackPayload builds a Block Kit message with one line per publication.
func slackPayload(n *Notification) map[string]any {
	icon := "✅"
	if n.Failed {
		icon = "⚠️"
	}

	pubs := make([]string, 0, len(n.Counts))
	for pub := range n.Counts {
		pubs = append(pubs, pub)
	}
	sort.Strings(pubs)

	var lines []string
	for _, pub := range pubs {
		lines = append(lines, fmt.Sprintf("*%s:* %d", pub, n.Counts[pub]))
	}

	text := n.Body
	if len(lines) > 0 {
		text += "\n" + strings.Join(lines, " | ")
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s", icon, n.Title),
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": text,
			},
		},
	}
	if n.RunID != "" {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": "run " + n.RunID},
			},
		})
	}
	return map[string]any{"blocks": blocks}
}
