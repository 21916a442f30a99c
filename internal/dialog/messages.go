package dialog

import (
	"strings"

	"github.com/MrWong99/callorder/internal/order"
)

// Messages holds every sentence spoken to the caller. Templates may use the
// placeholders {shop}, {summary}, {currency} and {total}.
type Messages struct {
	Welcome           string `yaml:"welcome"`
	NoSpeech          string `yaml:"no_speech"`
	NotUnderstood     string `yaml:"not_understood"`
	NothingRecognised string `yaml:"nothing_recognised"`
	ConfirmPrompt     string `yaml:"confirm_prompt"`
	Reprompt          string `yaml:"reprompt"`
	NoConfirmation    string `yaml:"no_confirmation"`
	SessionLost       string `yaml:"session_lost"`
	Success           string `yaml:"success"`
	Cancelled         string `yaml:"cancelled"`
	GaveUp            string `yaml:"gave_up"`
}

// DefaultMessages returns the stock English prompts.
func DefaultMessages() Messages {
	return Messages{
		Welcome:           "Welcome to {shop}. What would you like to order?",
		NoSpeech:          "We did not receive any speech. Goodbye.",
		NotUnderstood:     "Sorry, I did not understand.",
		NothingRecognised: "Sorry, I could not recognise any items from our menu. Please call again.",
		ConfirmPrompt:     "You ordered {summary}. Total is {currency}{total}. Say yes to confirm or no to cancel.",
		Reprompt:          "Sorry, I did not catch that. Please say yes to confirm your order of {summary}, or no to cancel.",
		NoConfirmation:    "No confirmation received. Goodbye.",
		SessionLost:       "Sorry, we lost the order information. Please call again.",
		Success:           "Thank you! Your order of {summary} totaling {currency}{total} has been sent to the kitchen.",
		Cancelled:         "Order cancelled. Thank you for calling {shop}.",
		GaveUp:            "Sorry, I did not understand your response. Order cancelled.",
	}
}

// withDefaults fills every empty field of m from [DefaultMessages].
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&m.Welcome, d.Welcome)
	fill(&m.NoSpeech, d.NoSpeech)
	fill(&m.NotUnderstood, d.NotUnderstood)
	fill(&m.NothingRecognised, d.NothingRecognised)
	fill(&m.ConfirmPrompt, d.ConfirmPrompt)
	fill(&m.Reprompt, d.Reprompt)
	fill(&m.NoConfirmation, d.NoConfirmation)
	fill(&m.SessionLost, d.SessionLost)
	fill(&m.Success, d.Success)
	fill(&m.Cancelled, d.Cancelled)
	fill(&m.GaveUp, d.GaveUp)
	return m
}

// render substitutes the placeholders in tmpl.
func (o *Orchestrator) render(tmpl string, ord order.Order) string {
	return strings.NewReplacer(
		"{shop}", o.shop,
		"{summary}", ord.Summary(),
		"{currency}", o.currency,
		"{total}", ord.TotalString(),
	).Replace(tmpl)
}
