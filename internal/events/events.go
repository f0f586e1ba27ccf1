// Package events publishes sync lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TopicSynced is the default topic for completed syncs.
const TopicSynced = "puzzles.synced"

// Synced is the payload published after a successful sync.
type Synced struct {
	RunID      string         `json:"run_id"`
	Written    int            `json:"written"`
	Counts     map[string]int `json:"counts"`
	Skipped    int            `json:"skipped"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Encode returns the wire form of e, keyed by run id.
func (e Synced) Encode() (key string, value []byte, err error) {
	value, err = json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("marshal synced event: %w", err)
	}
	return e.RunID, value, nil
}

// Publisher sends keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, []byte) error { return nil }
func (Nop) Close() error                                          { return nil }

// Message is one message held by Memory.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// Memory keeps published messages in process. Used by tests and by
// single-binary deployments that only want the log line.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("publisher is closed")
	}
	m.messages = append(m.messages, Message{Topic: topic, Key: key, Value: append([]byte(nil), value...)})
	return nil
}

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
