// Package notify tells operators how a sync went.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification summarises one sync run. Body is the report summary, or the
// error when Failed is set.
type Notification struct {
	Title    string
	Body     string
	RunID    string
	Written  int
	Counts   map[string]int
	Skipped  int
	Duration time.Duration
	Failed   bool
}

// Notifier delivers notifications to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to every notifier and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
