// Package interpret wires the order pipeline together: raw utterance →
// [normalize.Normalizer] → [match.Chain] → [order.Assemble].
package interpret

import (
	"context"

	"github.com/MrWong99/callorder/internal/match"
	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/normalize"
	"github.com/MrWong99/callorder/internal/observe"
	"github.com/MrWong99/callorder/internal/order"
)

// Result is the outcome of interpreting one utterance.
type Result struct {
	// Order is the assembled order. It is empty when nothing was recognised.
	Order order.Order

	// Normalized is the utterance after normalisation.
	Normalized string

	// Stage names the matcher that produced the items, or "" when none did.
	Stage string
}

// Interpreter is immutable and safe for concurrent use. A configuration
// change builds a new Interpreter instead of mutating this one.
type Interpreter struct {
	normalizer *normalize.Normalizer
	chain      *match.Chain
	catalog    *menu.Catalog
	metrics    *observe.Metrics
}

// New returns an [Interpreter]. metrics may be nil.
func New(n *normalize.Normalizer, chain *match.Chain, catalog *menu.Catalog, metrics *observe.Metrics) *Interpreter {
	return &Interpreter{normalizer: n, chain: chain, catalog: catalog, metrics: metrics}
}

// Catalog returns the catalog orders are priced against.
func (in *Interpreter) Catalog() *menu.Catalog { return in.catalog }

// Interpret turns utterance into a priced order. A blank utterance yields an
// empty order without consulting any matcher.
func (in *Interpreter) Interpret(ctx context.Context, utterance string) Result {
	ctx, span := observe.StartSpan(ctx, "interpret.Interpret")
	defer span.End()

	normalized := in.normalizer.Normalize(utterance)
	if normalized == "" {
		return Result{}
	}

	items, stage := in.chain.Run(ctx, normalized)
	if in.metrics != nil {
		in.metrics.RecordMatchStage(ctx, stage)
	}

	res := Result{
		Order:      order.Assemble(in.catalog, items),
		Normalized: normalized,
		Stage:      stage,
	}
	observe.Logger(ctx).Debug("utterance interpreted",
		"normalized", normalized,
		"stage", stage,
		"items", len(res.Order.Items),
		"total", res.Order.TotalString(),
	)
	return res
}
