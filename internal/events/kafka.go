package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes to a Kafka-compatible broker (Kafka, Redpanda) using franz-go.
type Kafka struct {
	client *kgo.Client
	mu     sync.RWMutex
	closed bool
}

// NewKafka connects a producer to the given seed brokers, e.g. ["localhost:19092"].
func NewKafka(brokers []string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Kafka{client: client}, nil
}

// Publish produces one record and waits for the broker to acknowledge it.
func (k *Kafka) Publish(ctx context.Context, topic, key string, value []byte) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return fmt.Errorf("publisher is closed")
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	k.client.Close()
	return nil
}
