// Package voice serves the Twilio voice webhooks of the ordering line.
//
// Routes:
//
//   - GET|POST /voice          greets the caller and gathers an order
//   - POST /voice/order        receives the spoken order
//   - POST /voice/confirm      receives the yes or no reply
//
// /process_order and /confirm_order are accepted as aliases of the two POST
// steps so existing phone number configurations keep working.
//
// Each handler delegates to a [Dialog] and renders its [dialog.Reply] as
// TwiML.
package voice

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/twilio/twilio-go/twiml"

	"github.com/MrWong99/callorder/internal/dialog"
	"github.com/MrWong99/callorder/internal/observe"
)

const (
	defaultVoice          = "alice"
	defaultOrderTimeout   = 4 * time.Second
	defaultConfirmTimeout = 5 * time.Second

	orderPath   = "/voice/order"
	confirmPath = "/voice/confirm"
)

// Dialog is the conversation logic behind the webhooks.
// [dialog.Orchestrator] implements it.
type Dialog interface {
	Welcome() dialog.Reply
	HandleOrder(ctx context.Context, callID, utterance string) dialog.Reply
	HandleConfirmation(ctx context.Context, callID, reply string) dialog.Reply
}

// Config configures a [Handler].
type Config struct {
	// Dialog answers each webhook. Required.
	Dialog Dialog

	// Voice is the Twilio text-to-speech voice. Defaults to "alice".
	Voice string

	// Language is passed to Say and Gather when non-empty, e.g. "en-GB".
	Language string

	// OrderTimeout is how long Twilio waits for the caller to start
	// speaking an order. Defaults to 4s.
	OrderTimeout time.Duration

	// ConfirmTimeout is how long Twilio waits for the yes or no reply.
	// Defaults to 5s.
	ConfirmTimeout time.Duration
}

// Handler serves the voice webhooks. It is safe for concurrent use.
type Handler struct {
	dialog         Dialog
	voice          string
	language       string
	orderTimeout   time.Duration
	confirmTimeout time.Duration
}

// New returns a [Handler]. It panics if cfg.Dialog is nil.
func New(cfg Config) *Handler {
	if cfg.Dialog == nil {
		panic("voice: dialog is required")
	}
	h := &Handler{
		dialog:         cfg.Dialog,
		voice:          cfg.Voice,
		language:       cfg.Language,
		orderTimeout:   cfg.OrderTimeout,
		confirmTimeout: cfg.ConfirmTimeout,
	}
	if h.voice == "" {
		h.voice = defaultVoice
	}
	if h.orderTimeout <= 0 {
		h.orderTimeout = defaultOrderTimeout
	}
	if h.confirmTimeout <= 0 {
		h.confirmTimeout = defaultConfirmTimeout
	}
	return h
}

// Register adds the voice routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /voice", h.Incoming)
	mux.HandleFunc("POST /voice", h.Incoming)
	mux.HandleFunc("POST "+orderPath, h.Order)
	mux.HandleFunc("POST "+confirmPath, h.Confirm)
	mux.HandleFunc("POST /process_order", h.Order)
	mux.HandleFunc("POST /confirm_order", h.Confirm)
}

// Incoming answers a new call.
func (h *Handler) Incoming(w http.ResponseWriter, r *http.Request) {
	observe.Logger(r.Context()).Info("incoming call", "call_id", r.FormValue("CallSid"), "from", r.FormValue("From"))
	h.write(w, r, h.dialog.Welcome())
}

// Order handles the caller's spoken order.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	reply := h.dialog.HandleOrder(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("SpeechResult"))
	h.write(w, r, reply)
}

// Confirm handles the caller's yes or no.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	reply := h.dialog.HandleConfirmation(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("SpeechResult"))
	h.write(w, r, reply)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, reply dialog.Reply) {
	body, err := h.render(reply)
	if err != nil {
		observe.Logger(r.Context()).Error("failed to render twiml", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// render converts reply to a TwiML document. A reply with a gather step
// speaks inside the Gather so the caller can barge in, then speaks the
// fallback if Twilio received no speech.
func (h *Handler) render(reply dialog.Reply) (string, error) {
	var action string
	var timeout time.Duration
	switch reply.Gather {
	case dialog.StepOrder:
		action, timeout = orderPath, h.orderTimeout
	case dialog.StepConfirm:
		action, timeout = confirmPath, h.confirmTimeout
	}

	if action == "" {
		return twiml.Voice([]twiml.Element{h.say(reply.Say), &twiml.VoiceHangup{}})
	}

	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        action,
		Method:        http.MethodPost,
		Timeout:       strconv.Itoa(int(timeout.Seconds())),
		Language:      h.language,
		InnerElements: []twiml.Element{h.say(reply.Say)},
	}
	verbs := []twiml.Element{gather}
	if reply.Fallback != "" {
		verbs = append(verbs, h.say(reply.Fallback))
	}
	return twiml.Voice(verbs)
}

func (h *Handler) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Voice: h.voice, Language: h.language}
}
