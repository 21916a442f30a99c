// Package dialog drives a phone order from the caller's first utterance to a
// confirmed or cancelled order.
//
// The [Orchestrator] is transport-neutral: each handler returns a [Reply]
// describing what to say and which step to listen for next. The voice
// package renders replies as TwiML.
//
// Flow:
//
//	Welcome -> HandleOrder -> HandleConfirmation -> Confirmed | Cancelled
//
// A session is stored between the order step and the confirmation step and is
// claimed with [callsession.Store.Take] on every terminal outcome, so a
// repeated "yes" for the same call can never notify the kitchen twice.
//
// A confirmed order is archived and sent to the kitchen in the background;
// the caller hears the success message without waiting for delivery.
// [Orchestrator.Drain] waits for deliveries still in flight.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/callorder/internal/callsession"
	"github.com/MrWong99/callorder/internal/confirm"
	"github.com/MrWong99/callorder/internal/interpret"
	"github.com/MrWong99/callorder/internal/notify"
	"github.com/MrWong99/callorder/internal/observe"
	"github.com/MrWong99/callorder/internal/order"
	"github.com/MrWong99/callorder/internal/orderlog"
)

const (
	defaultMaxConfirmAttempts = 2
	defaultNotifyTimeout      = 10 * time.Second
	defaultCurrency           = "£"
	defaultShopName           = "our shop"
)

// State is the position of a call in the dialog after a handler ran.
type State int

const (
	// AwaitingOrder means no order is pending for the call. Welcome listens
	// for one; after an empty order or a lost session the call ends instead.
	AwaitingOrder State = iota

	// AwaitingConfirmation means an order was read back and a yes or no is
	// expected.
	AwaitingConfirmation

	// Confirmed means the order was accepted and sent to the kitchen.
	Confirmed

	// Cancelled means the order was rejected or abandoned.
	Cancelled

	// Unrecognized means the request could not be processed and the call ends.
	Unrecognized
)

// String returns the lowercase name of s.
func (s State) String() string {
	switch s {
	case AwaitingOrder:
		return "awaiting_order"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	case Unrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Step names which handler the next caller utterance is routed to.
type Step string

const (
	// StepNone ends the call after the reply is spoken.
	StepNone Step = ""

	// StepOrder routes the next utterance to [Orchestrator.HandleOrder].
	StepOrder Step = "order"

	// StepConfirm routes the next utterance to [Orchestrator.HandleConfirmation].
	StepConfirm Step = "confirm"
)

// Reply is what the caller hears after one dialog step.
type Reply struct {
	// State is the dialog state after the step.
	State State

	// Say is spoken to the caller.
	Say string

	// Gather is the step to listen for next. [StepNone] hangs up after Say.
	Gather Step

	// Fallback is spoken when Gather is set and the caller stays silent.
	Fallback string

	// Order is the order involved in this step, if any.
	Order order.Order
}

// Archive records confirmed orders. [orderlog.Store] implements it.
type Archive interface {
	Record(ctx context.Context, e orderlog.Entry) (string, error)
}

// Config configures an [Orchestrator].
type Config struct {
	// Interpreter turns order utterances into priced orders. Required.
	Interpreter *interpret.Interpreter

	// Classifier turns confirmation replies into yes or no. Defaults to
	// [confirm.Default].
	Classifier *confirm.Classifier

	// Store holds pending orders between steps. Required.
	Store callsession.Store

	// Notifier sends confirmed orders to the kitchen. Defaults to a
	// [notify.Log] notifier.
	Notifier notify.Notifier

	// Archive is optional. When set, confirmed orders are recorded before
	// the kitchen is notified.
	Archive Archive

	// Metrics is optional.
	Metrics *observe.Metrics

	// Messages overrides individual prompts. Empty fields use
	// [DefaultMessages].
	Messages Messages

	// Currency is the symbol spoken before totals. Defaults to "£".
	Currency string

	// ShopName is substituted for {shop} in prompts.
	ShopName string

	// MaxConfirmAttempts is how many unrecognised confirmation replies end
	// the call. Defaults to 2.
	MaxConfirmAttempts int

	// NotifyTimeout bounds the background archive write and kitchen
	// delivery of one order. Defaults to 10s.
	NotifyTimeout time.Duration

	// Now returns the current time. Defaults to [time.Now].
	Now func() time.Time
}

// Orchestrator runs the order dialog. All methods are safe for concurrent use.
type Orchestrator struct {
	interpreter atomic.Pointer[interpret.Interpreter]
	classifier  atomic.Pointer[confirm.Classifier]

	store         callsession.Store
	notifier      notify.Notifier
	archive       Archive
	metrics       *observe.Metrics
	messages      Messages
	currency      string
	shop          string
	maxAttempts   int
	notifyTimeout time.Duration
	now           func() time.Time

	deliveries sync.WaitGroup
}

// New returns an [Orchestrator] for cfg.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Interpreter == nil {
		errs = append(errs, errors.New("dialog: interpreter is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("dialog: session store is required"))
	}
	if cfg.MaxConfirmAttempts < 0 {
		errs = append(errs, errors.New("dialog: max confirm attempts must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		archive:       cfg.Archive,
		metrics:       cfg.Metrics,
		messages:      cfg.Messages.withDefaults(),
		currency:      cfg.Currency,
		shop:          cfg.ShopName,
		maxAttempts:   cfg.MaxConfirmAttempts,
		notifyTimeout: cfg.NotifyTimeout,
		now:           cfg.Now,
	}
	if o.notifier == nil {
		o.notifier = notify.NewLog(nil)
	}
	if o.currency == "" {
		o.currency = defaultCurrency
	}
	if o.shop == "" {
		o.shop = defaultShopName
	}
	if o.maxAttempts == 0 {
		o.maxAttempts = defaultMaxConfirmAttempts
	}
	if o.notifyTimeout <= 0 {
		o.notifyTimeout = defaultNotifyTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}

	o.interpreter.Store(cfg.Interpreter)
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = confirm.Default()
	}
	o.classifier.Store(classifier)
	return o, nil
}

// SetInterpreter swaps the interpreter used for subsequent calls. Calls
// already past the order step keep the order they were quoted.
func (o *Orchestrator) SetInterpreter(in *interpret.Interpreter) {
	if in != nil {
		o.interpreter.Store(in)
	}
}

// SetClassifier swaps the confirmation classifier.
func (o *Orchestrator) SetClassifier(c *confirm.Classifier) {
	if c != nil {
		o.classifier.Store(c)
	}
}

// Welcome greets a new call and listens for an order.
func (o *Orchestrator) Welcome() Reply {
	return Reply{
		State:    AwaitingOrder,
		Say:      o.render(o.messages.Welcome, order.Order{}),
		Gather:   StepOrder,
		Fallback: o.render(o.messages.NoSpeech, order.Order{}),
	}
}

// HandleOrder interprets the caller's order utterance. A recognised order is
// stored for callID and read back for confirmation. An utterance with no menu
// items ends the call with an apology and stores nothing.
func (o *Orchestrator) HandleOrder(ctx context.Context, callID, utterance string) Reply {
	ctx, span := observe.StartCallSpan(ctx, "dialog.HandleOrder", callID)
	defer span.End()

	log := observe.Logger(ctx)

	if strings.TrimSpace(callID) == "" || strings.TrimSpace(utterance) == "" {
		o.recordOrder(ctx, "rejected")
		log.Info("order request missing call id or speech")
		return Reply{State: Unrecognized, Say: o.render(o.messages.NotUnderstood, order.Order{})}
	}

	res := o.interpreter.Load().Interpret(ctx, utterance)
	if res.Order.Empty() {
		o.recordOrder(ctx, "empty")
		log.Info("no menu items recognised", "utterance", utterance)
		return Reply{State: AwaitingOrder, Say: o.render(o.messages.NothingRecognised, order.Order{})}
	}

	sess := callsession.Session{
		CallID:       callID,
		Order:        res.Order,
		RawUtterance: utterance,
		CreatedAt:    o.now(),
	}
	if err := o.store.Put(ctx, sess); err != nil {
		o.recordOrder(ctx, "store_error")
		log.Error("failed to store call session", "err", err)
		return Reply{State: Unrecognized, Say: o.render(o.messages.NotUnderstood, order.Order{})}
	}

	o.recordOrder(ctx, "pending")
	log.Info("order awaiting confirmation",
		"stage", res.Stage,
		"summary", res.Order.Summary(),
		"total", res.Order.TotalString(),
	)
	return Reply{
		State:    AwaitingConfirmation,
		Say:      o.render(o.messages.ConfirmPrompt, res.Order),
		Gather:   StepConfirm,
		Fallback: o.render(o.messages.NoConfirmation, res.Order),
		Order:    res.Order,
	}
}

// HandleConfirmation classifies the caller's reply to the read-back. "yes"
// confirms the order and hands it to the kitchen; "no" cancels it. An
// unrecognised reply is re-prompted until MaxConfirmAttempts is reached. A
// call without a live session ends with an apology.
func (o *Orchestrator) HandleConfirmation(ctx context.Context, callID, reply string) Reply {
	ctx, span := observe.StartCallSpan(ctx, "dialog.HandleConfirmation", callID)
	defer span.End()

	log := observe.Logger(ctx)

	sess, err := o.store.Get(ctx, callID)
	if err != nil {
		if !errors.Is(err, callsession.ErrNotFound) {
			log.Error("failed to load call session", "err", err)
		}
		return o.sessionLost(ctx)
	}

	result := o.classifier.Load().Classify(reply)
	if o.metrics != nil {
		o.metrics.RecordConfirmation(ctx, result.String())
	}

	switch result {
	case confirm.Yes:
		return o.confirmOrder(ctx, callID)
	case confirm.No:
		if _, ok := o.finish(ctx, callID); !ok {
			return o.sessionLost(ctx)
		}
		o.recordOrder(ctx, "cancelled")
		log.Info("order cancelled by caller")
		return Reply{State: Cancelled, Say: o.render(o.messages.Cancelled, sess.Order), Order: sess.Order}
	}

	sess, err = o.store.Update(ctx, callID, func(s *callsession.Session) error {
		s.ConfirmAttempts++
		return nil
	})
	if err != nil {
		if !errors.Is(err, callsession.ErrNotFound) {
			log.Error("failed to update confirm attempts", "err", err)
		}
		return o.sessionLost(ctx)
	}
	if sess.ConfirmAttempts >= o.maxAttempts {
		if _, ok := o.finish(ctx, callID); !ok {
			return o.sessionLost(ctx)
		}
		o.recordOrder(ctx, "abandoned")
		log.Info("confirmation not understood, giving up", "attempts", sess.ConfirmAttempts, "reply", reply)
		return Reply{State: Cancelled, Say: o.render(o.messages.GaveUp, sess.Order), Order: sess.Order}
	}
	log.Info("confirmation not understood, re-prompting", "attempts", sess.ConfirmAttempts, "reply", reply)
	return Reply{
		State:    AwaitingConfirmation,
		Say:      o.render(o.messages.Reprompt, sess.Order),
		Gather:   StepConfirm,
		Fallback: o.render(o.messages.NoConfirmation, sess.Order),
		Order:    sess.Order,
	}
}

// Drain waits until every confirmed order handed to the background has been
// archived and delivered, or until ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dialog: drain deliveries: %w", ctx.Err())
	}
}

// confirmOrder finalises the session of callID. The session is claimed with
// [callsession.Store.Take] before any side effect, so of two concurrent "yes"
// replies only one reaches the archive and the kitchen.
func (o *Orchestrator) confirmOrder(ctx context.Context, callID string) Reply {
	log := observe.Logger(ctx)
	sess, ok := o.finish(ctx, callID)
	if !ok {
		log.Info("order already finalised by a concurrent request")
		return Reply{State: Confirmed, Say: o.render(o.messages.Success, order.Order{})}
	}

	confirmedAt := o.now()
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	o.deliveries.Add(1)
	go func() {
		defer o.deliveries.Done()
		defer cancel()
		o.deliver(dctx, sess, confirmedAt)
	}()

	o.recordOrder(ctx, "confirmed")
	log.Info("order confirmed", "total", sess.Order.TotalString())
	return Reply{
		State: Confirmed,
		Say:   o.render(o.messages.Success, sess.Order),
		Order: sess.Order,
	}
}

// deliver archives a confirmed order and sends it to the kitchen. Failures
// are logged and counted only.
func (o *Orchestrator) deliver(ctx context.Context, sess callsession.Session, confirmedAt time.Time) {
	log := observe.Logger(ctx)

	var orderID string
	if o.archive != nil {
		id, err := o.archive.Record(ctx, orderlog.Entry{
			CallID:      sess.CallID,
			Items:       sess.Order.Items,
			Summary:     sess.Order.Summary(),
			Total:       sess.Order.Total,
			Currency:    o.currency,
			Utterance:   sess.RawUtterance,
			ConfirmedAt: confirmedAt,
		})
		if err != nil {
			log.Error("failed to archive order", "err", err)
		} else {
			orderID = id
		}
	}

	n := notify.Notification{
		OrderID:   orderID,
		CallID:    sess.CallID,
		Order:     sess.Order,
		Utterance: sess.RawUtterance,
		Text:      notify.FormatOrderMessage(sess.Order, o.currency, sess.RawUtterance),
	}
	status := "ok"
	if err := o.notifier.Notify(ctx, n); err != nil {
		status = "error"
		log.Error("failed to notify kitchen", "notifier", o.notifier.Name(), "order_id", orderID, "err", err)
	} else {
		log.Info("order delivered", "notifier", o.notifier.Name(), "order_id", orderID)
	}
	if o.metrics != nil {
		o.metrics.RecordNotification(ctx, o.notifier.Name(), status)
	}
}

// finish removes the session of callID. ok is false when another request
// already finalised it.
func (o *Orchestrator) finish(ctx context.Context, callID string) (callsession.Session, bool) {
	sess, err := o.store.Take(ctx, callID)
	if err != nil {
		if !errors.Is(err, callsession.ErrNotFound) {
			observe.Logger(ctx).Error("failed to remove call session", "err", err)
		}
		return callsession.Session{}, false
	}
	return sess, true
}

func (o *Orchestrator) sessionLost(ctx context.Context) Reply {
	o.recordOrder(ctx, "session_lost")
	return Reply{State: AwaitingOrder, Say: o.render(o.messages.SessionLost, order.Order{})}
}

func (o *Orchestrator) recordOrder(ctx context.Context, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordOrder(ctx, outcome)
	}
}
