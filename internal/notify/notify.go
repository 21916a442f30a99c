// Package notify defines how confirmed orders reach the kitchen.
//
// A [Notifier] receives one [Notification] per confirmed order. Delivery
// failures are reported to the caller, which logs them; a failed notification
// never changes what the caller on the phone hears.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/callorder/internal/order"
)

// Notification describes one confirmed order.
type Notification struct {
	// OrderID identifies the order in the archive, if one was assigned.
	OrderID string

	// CallID is the telephony call the order was placed on.
	CallID string

	// Order is the confirmed order.
	Order order.Order

	// Utterance is the caller's original order text.
	Utterance string

	// Text is the rendered message body, see [FormatOrderMessage].
	Text string
}

// Notifier delivers order notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	// Name identifies the notifier in logs and metrics.
	Name() string

	// Notify delivers n, returning an error if delivery failed.
	Notify(ctx context.Context, n Notification) error
}

// FormatOrderMessage renders the kitchen message for o, e.g.
// "New Order: 2 x chicken baguette, 1 x coke. Total £13.18. Original speech: two chicken baguettes and a coke".
func FormatOrderMessage(o order.Order, currency, utterance string) string {
	return fmt.Sprintf("New Order: %s. Total %s%s. Original speech: %s",
		o.Summary(), currency, o.TotalString(), utterance)
}

// Log is a [Notifier] that writes notifications to a structured logger. It is
// used when no messaging transport is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a [Log] notifier. A nil logger uses [slog.Default].
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Name implements [Notifier].
func (l *Log) Name() string { return "log" }

// Notify implements [Notifier].
func (l *Log) Notify(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "order notification",
		"order_id", n.OrderID,
		"call_id", n.CallID,
		"total", n.Order.TotalString(),
		"message", n.Text,
	)
	return nil
}

var _ Notifier = (*Log)(nil)
