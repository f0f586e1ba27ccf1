package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(_ context.Context, n *Notification) error {
	s.got = append(s.got, n)
	return s.err
}

func sample() *Notification {
	return &Notification{
		Title:    "Puzzle sync complete",
		Body:     "3 puzzles",
		RunID:    "run-1",
		Written:  3,
		Counts:   map[string]int{"wsj": 1, "atlantic": 2},
		Skipped:  1,
		Duration: 1500 * time.Millisecond,
	}
}

func TestBroadcastJoinsErrors(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("boom")}
	m := NewManager([]Notifier{bad, ok})

	err := m.Broadcast(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.got, 1, "a failing notifier must not stop the others")
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.HasNotifiers())
	assert.NoError(t, m.Broadcast(context.Background(), sample()))
	assert.False(t, NewManager(nil).HasNotifiers())
}

func TestWebhookSignsPayload(t *testing.T) {
	var body []byte
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get("X-Signature-256")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), sample()))

	assert.True(t, Verify("s3cret", body, sig))
	assert.False(t, Verify("other", body, sig))

	var got WebhookPayload
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, WebhookPayload{
		Event:      EventSyncCompleted,
		RunID:      "run-1",
		Summary:    "3 puzzles",
		Written:    3,
		Counts:     map[string]int{"wsj": 1, "atlantic": 2},
		Skipped:    1,
		DurationMS: 1500,
	}, got)
}

func TestWebhookFailurePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := &Notification{Title: "Puzzle sync failed", Body: "list puzzles: upstream unavailable", RunID: "run-2", Failed: true}
	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), n))

	assert.Equal(t, EventSyncFailed, got["event"])
	assert.Equal(t, "list puzzles: upstream unavailable", got["error"])
	assert.NotContains(t, got, "summary")
	assert.NotContains(t, got, "counts")
}

func TestWebhookWithoutSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Signature-256"))
	}))
	defer srv.Close()

	assert.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), sample()))
}

func TestWebhookStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "").Send(context.Background(), sample())
	assert.ErrorContains(t, err, "502")
}

func TestSlackPayload(t *testing.T) {
	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), sample()))
	require.Len(t, payload.Blocks, 3)

	section := payload.Blocks[1]["text"].(map[string]any)["text"].(string)
	assert.Equal(t, "3 puzzles\n*atlantic:* 2 | *wsj:* 1", section)
}
