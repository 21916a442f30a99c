// Package extract implements the language-model fallback used when local
// matching recognises nothing in an utterance.
//
// The [Extractor] sends the menu, the alias table and the utterance to an
// [llm.Provider] and asks for a strict JSON reply. The reply is never trusted:
// [Validate] checks its shape, resolves every name through the alias table,
// coerces quantities and discards the model's arithmetic. Every failure mode
// degrades to an empty result so the caller is simply told nothing was
// recognised.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/observe"
	"github.com/MrWong99/callorder/internal/order"
	"github.com/MrWong99/callorder/pkg/provider/llm"
)

const (
	defaultTimeout     = 8 * time.Second
	defaultTemperature = 0
	defaultMaxTokens   = 256
)

const systemPromptTemplate = `You convert phone orders for a takeaway shop into JSON.

Menu (item name to unit price):
%s

Known aliases (item name to spoken variants):
%s

Rules:
- Only use item names from the menu. Map spoken variants to the menu name.
- Quantities are positive whole numbers. Default to 1 when none is said.
- Ignore anything that is not on the menu.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"items":[{"name":"<menu item>","quantity":<number>}],"total":<number>}

If nothing on the menu was ordered, respond with {"items":[],"total":0}.`

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithTimeout bounds each provider call. Default: 8s.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(e *Extractor) {
		e.temperature = temp
	}
}

// WithCache keeps up to size Parsed outcomes keyed by utterance. A size of
// zero or less disables caching.
func WithCache(size int) Option {
	return func(e *Extractor) {
		if size <= 0 {
			e.cache = nil
			return
		}
		c, err := lru.New[string, []order.Item](size)
		if err == nil {
			e.cache = c
		}
	}
}

// WithMetrics records outcomes and provider latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// Extractor is a [match.Strategy] backed by a language model. It is safe for
// concurrent use.
//
// Model selection follows the one-provider-per-model pattern: construct the
// [llm.Provider] with the desired model rather than overriding it per request.
type Extractor struct {
	provider    llm.Provider
	aliases     *menu.AliasTable
	prompt      string
	timeout     time.Duration
	temperature float64
	cache       *lru.Cache[string, []order.Item]
	metrics     *observe.Metrics
}

// New returns an [Extractor] that asks provider about the items in aliases.
func New(provider llm.Provider, aliases *menu.AliasTable, opts ...Option) (*Extractor, error) {
	if provider == nil {
		return nil, fmt.Errorf("extract: provider must not be nil")
	}
	if aliases == nil {
		return nil, fmt.Errorf("extract: alias table must not be nil")
	}
	prompt, err := buildSystemPrompt(aliases)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		provider:    provider,
		aliases:     aliases,
		prompt:      prompt,
		timeout:     defaultTimeout,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements match.Strategy.
func (e *Extractor) Name() string { return "extraction" }

// Match implements match.Strategy. Any non-Parsed outcome yields no items.
func (e *Extractor) Match(ctx context.Context, utterance string) []order.Item {
	return e.Extract(ctx, utterance).Items
}

// Extract asks the model about utterance and validates the reply. It never
// returns an error; failures are reported through [Outcome.Kind].
func (e *Extractor) Extract(ctx context.Context, utterance string) Outcome {
	ctx, span := observe.StartSpan(ctx, "extract.Extract")
	defer span.End()

	log := observe.Logger(ctx)

	if e.cache != nil {
		if items, ok := e.cache.Get(utterance); ok {
			out := Outcome{Kind: Parsed, Items: items, Cached: true}
			e.record(ctx, out)
			return out
		}
	}

	out := e.complete(ctx, utterance)
	span.SetAttributes(
		attribute.String("extract.outcome", out.Kind.String()),
		attribute.Int("extract.items", len(out.Items)),
	)
	if out.Err != nil {
		span.SetStatus(codes.Error, out.Err.Error())
	}

	switch out.Kind {
	case Parsed:
		if len(out.Dropped) > 0 {
			log.Debug("extraction dropped entries", "dropped", out.Dropped)
		}
		if out.ReportedTotal != "" {
			log.Debug("extraction reported total ignored", "reported_total", out.ReportedTotal)
		}
		if e.cache != nil {
			e.cache.Add(utterance, out.Items)
		}
	default:
		log.Warn("extraction fallback failed", "outcome", out.Kind.String(), "err", out.Err)
	}

	e.record(ctx, out)
	return out
}

// complete performs one bounded provider call and validates the reply.
func (e *Extractor) complete(ctx context.Context, utterance string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		SystemPrompt: e.prompt,
		Temperature:  e.temperature,
		MaxTokens:    defaultMaxTokens,
		JSONMode:     e.provider.Capabilities().SupportsJSONMode,
		Messages: []llm.Message{
			{Role: "user", Content: utterance},
		},
	}

	start := time.Now()
	resp, err := e.provider.Complete(ctx, req)
	if e.metrics != nil {
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return Outcome{Kind: ProviderError, Err: fmt.Errorf("extract: complete: %w", err)}
	}
	if resp == nil {
		return Outcome{Kind: ProviderError, Err: fmt.Errorf("extract: complete: empty response")}
	}
	return Validate(resp.Content, e.aliases)
}

func (e *Extractor) record(ctx context.Context, out Outcome) {
	if e.metrics != nil {
		e.metrics.RecordExtraction(ctx, out.Kind.String(), out.Cached)
	}
}

// buildSystemPrompt renders the menu and aliases as JSON into the prompt.
func buildSystemPrompt(aliases *menu.AliasTable) (string, error) {
	prices := make(map[string]json.Number, aliases.Catalog().Len())
	for name, p := range aliases.Catalog().Prices() {
		prices[name] = json.Number(p.StringFixed(2))
	}
	menuJSON, err := json.Marshal(prices)
	if err != nil {
		return "", fmt.Errorf("extract: encode menu: %w", err)
	}
	aliasJSON, err := json.Marshal(aliases.Aliases())
	if err != nil {
		return "", fmt.Errorf("extract: encode aliases: %w", err)
	}
	return fmt.Sprintf(systemPromptTemplate, menuJSON, aliasJSON), nil
}
