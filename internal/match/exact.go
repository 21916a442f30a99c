package match

import (
	"context"
	"slices"
	"strings"

	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/order"
)

// pluralSuffixes may follow a phrase without breaking the word boundary, so
// "baguettes" still counts as "baguette".
var pluralSuffixes = []string{"es", "s"}

// Exact finds catalog names and aliases as whole-word substrings of the
// utterance. Longer phrases are matched first and claim their span, so
// "large fries" never also counts as "fries".
type Exact struct {
	phrases []menu.Phrase
}

// NewExact returns an [Exact] strategy over the names and aliases of table.
func NewExact(table *menu.AliasTable) *Exact {
	return &Exact{phrases: table.Phrases()}
}

// Name implements [Strategy].
func (e *Exact) Name() string { return "exact" }

type hit struct {
	pos  int // token index of the first word
	item order.Item
}

// Match implements [Strategy]. Every non-overlapping occurrence yields one
// item whose quantity comes from the word directly in front of it.
func (e *Exact) Match(_ context.Context, utterance string) []order.Item {
	hits, _ := e.find(utterance, tokenize(utterance))
	return spoken(hits)
}

// find returns the hits in utterance together with a byte mask of the spans
// they claimed. spans are the token spans of utterance.
func (e *Exact) find(utterance string, spans []span) ([]hit, []bool) {
	covered := make([]bool, len(utterance))
	var hits []hit

	for _, p := range e.phrases {
		from := 0
		for from < len(utterance) {
			i := strings.Index(utterance[from:], p.Text)
			if i < 0 {
				break
			}
			start := from + i
			from = start + 1

			if start > 0 && utterance[start-1] != ' ' {
				continue
			}
			stop, ok := wordEnd(utterance, start+len(p.Text))
			if !ok || slices.Contains(covered[start:stop], true) {
				continue
			}
			for j := start; j < stop; j++ {
				covered[j] = true
			}
			pos := slices.IndexFunc(spans, func(sp span) bool { return sp.start == start })
			hits = append(hits, hit{
				pos: pos,
				item: order.Item{
					Name:     p.Canonical,
					Quantity: quantityBefore(strings.Fields(utterance[:start])),
				},
			})
			from = stop
		}
	}
	return hits, covered
}

// spoken sorts hits into spoken order and returns their items.
func spoken(hits []hit) []order.Item {
	slices.SortFunc(hits, func(a, b hit) int { return a.pos - b.pos })
	out := make([]order.Item, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// span is the byte range of one space-separated token.
type span struct {
	start, end int
}

// tokenize splits s on single spaces, the separator the normaliser leaves
// between words.
func tokenize(s string) []span {
	var spans []span
	start := -1
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if start >= 0 {
				spans = append(spans, span{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return spans
}

// wordEnd reports where the word ending at end really stops, allowing for a
// plural suffix. ok is false when end falls inside a longer word.
func wordEnd(s string, end int) (stop int, ok bool) {
	if end == len(s) || s[end] == ' ' {
		return end, true
	}
	for _, suf := range pluralSuffixes {
		if !strings.HasPrefix(s[end:], suf) {
			continue
		}
		stop := end + len(suf)
		if stop == len(s) || s[stop] == ' ' {
			return stop, true
		}
	}
	return 0, false
}
