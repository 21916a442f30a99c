// Package mock provides a test double for the notify.Notifier interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/callorder/internal/notify"
)

// Notifier is a mock implementation of notify.Notifier that records every
// notification it receives.
type Notifier struct {
	mu sync.Mutex

	// NotifyErr, if non-nil, is returned from every Notify call. The
	// notification is still recorded.
	NotifyErr error

	// NameValue is returned by Name. Empty means "mock".
	NameValue string

	// Sent records every notification in order.
	Sent []notify.Notification
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string {
	if n.NameValue == "" {
		return "mock"
	}
	return n.NameValue
}

// Notify records the notification and returns NotifyErr.
func (n *Notifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
	return n.NotifyErr
}

// Notifications returns a copy of the recorded notifications. Thread-safe.
func (n *Notifier) Notifications() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Notification, len(n.Sent))
	copy(out, n.Sent)
	return out
}

// Ensure Notifier implements notify.Notifier at compile time.
var _ notify.Notifier = (*Notifier)(nil)
