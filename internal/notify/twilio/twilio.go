// Package twilio delivers kitchen notifications as WhatsApp or SMS messages
// through the Twilio Messaging API.
//
// Usage:
//
//	n, err := twilio.New(accountSID, authToken, "whatsapp:+14155238886", "whatsapp:+447700900123")
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	twiliosdk "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/MrWong99/callorder/internal/notify"
	"github.com/MrWong99/callorder/internal/observe"
)

// MessageCreator is the subset of the Twilio REST API used by [Notifier].
// *twilioApi.ApiService satisfies it.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Notifier sends each notification as one message from a fixed sender to a
// fixed recipient. Prefix both numbers with "whatsapp:" for WhatsApp
// delivery.
type Notifier struct {
	api  MessageCreator
	from string
	to   string
}

const defaultHTTPTimeout = 10 * time.Second

// Option configures the REST client built by [New].
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout bounds each HTTP request to the Twilio API. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New creates a [Notifier] using a Twilio REST client for the given account.
func New(accountSID, authToken, from, to string, opts ...Option) (*Notifier, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio notifier: account sid and auth token are required")
	}
	o := options{timeout: defaultHTTPTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	client := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	client.SetTimeout(o.timeout)
	return NewWithAPI(client.Api, from, to)
}

// NewWithAPI creates a [Notifier] on top of an existing [MessageCreator].
func NewWithAPI(api MessageCreator, from, to string) (*Notifier, error) {
	if api == nil {
		return nil, errors.New("twilio notifier: api must not be nil")
	}
	if from == "" || to == "" {
		return nil, errors.New("twilio notifier: from and to numbers are required")
	}
	if strings.HasPrefix(from, "whatsapp:") != strings.HasPrefix(to, "whatsapp:") {
		return nil, fmt.Errorf("twilio notifier: from %q and to %q must both use or both omit the whatsapp: prefix", from, to)
	}
	return &Notifier{api: api, from: from, to: to}, nil
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "twilio" }

// Notify implements notify.Notifier. The Twilio client takes no context, so
// the request runs on its own goroutine and Notify returns once ctx is done.
// The abandoned request still ends at the client's HTTP timeout.
func (n *Notifier) Notify(ctx context.Context, msg notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("twilio notifier: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(n.to)
	params.SetBody(msg.Text)

	type result struct {
		resp *twilioApi.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := n.api.CreateMessage(params)
		done <- result{resp: resp, err: err}
	}()

	var resp *twilioApi.ApiV2010Message
	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("twilio notifier: create message: %w", r.err)
		}
		resp = r.resp
	case <-ctx.Done():
		return fmt.Errorf("twilio notifier: create message: %w", ctx.Err())
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	observe.Logger(ctx).Info("order notification sent", "message_sid", sid)
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
