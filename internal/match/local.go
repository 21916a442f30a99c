package match

import (
	"context"
	"slices"

	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/order"
)

// Local judges every item of an utterance without leaving the process.
// Substring matches are found first and claim their words; the remaining
// words are then matched phonetically. Both result sets are merged in spoken
// order, so "a coke and a tunna baggett" yields both items.
type Local struct {
	exact    *Exact
	phonetic *Phonetic
}

// NewLocal returns a [Local] strategy over the names and aliases of table.
// opts configure the phonetic pass.
func NewLocal(table *menu.AliasTable, opts ...PhoneticOption) *Local {
	return &Local{
		exact:    NewExact(table),
		phonetic: NewPhonetic(table, opts...),
	}
}

// Name implements [Strategy].
func (l *Local) Name() string { return "local" }

// Match implements [Strategy].
func (l *Local) Match(ctx context.Context, utterance string) []order.Item {
	items, _ := l.MatchStage(ctx, utterance)
	return items
}

// MatchStage implements [Staged]. The stage is "exact", "phonetic" or
// "exact+phonetic" depending on which passes contributed items.
func (l *Local) MatchStage(_ context.Context, utterance string) ([]order.Item, string) {
	spans := tokenize(utterance)
	exactHits, covered := l.exact.find(utterance, spans)

	tokens := make([]string, len(spans))
	claimed := make([]bool, len(spans))
	for i, sp := range spans {
		tokens[i] = utterance[sp.start:sp.end]
		claimed[i] = slices.Contains(covered[sp.start:sp.end], true)
	}
	phoneticHits := l.phonetic.find(tokens, claimed)

	var stage string
	switch {
	case len(exactHits) > 0 && len(phoneticHits) > 0:
		stage = "exact+phonetic"
	case len(exactHits) > 0:
		stage = "exact"
	case len(phoneticHits) > 0:
		stage = "phonetic"
	default:
		return nil, ""
	}
	return spoken(append(exactHits, phoneticHits...)), stage
}
