// Package match turns a normalised utterance into candidate order items.
//
// Matching is split into ordered [Strategy] implementations run through a
// [Chain]: the first strategy returning a non-empty result wins. [Local] is
// the in-process stage. It combines [Exact] (substring matching of names and
// aliases) with [Phonetic] (per-word Double Metaphone codes ranked by
// Jaro-Winkler similarity) over the words Exact left unclaimed. The
// language-model fallback lives in package extract and plugs into the same
// interface.
//
// Strategies report "no match" with an empty slice and never return errors;
// failures inside a strategy degrade to no match.
package match

import (
	"context"

	"github.com/MrWong99/callorder/internal/order"
)

// Strategy recognises menu items in a normalised utterance.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Match returns the items found in utterance in spoken order, or an empty
	// slice when nothing was recognised. Quantities are positive.
	Match(ctx context.Context, utterance string) []order.Item
}

// Staged is implemented by strategies that report a finer stage name than
// [Strategy.Name] for each result.
type Staged interface {
	MatchStage(ctx context.Context, utterance string) ([]order.Item, string)
}

// Chain runs strategies in order and stops at the first non-empty result.
type Chain struct {
	strategies []Strategy
}

// NewChain returns a [Chain] over strategies, which run in the given order.
// Nil strategies are skipped.
func NewChain(strategies ...Strategy) *Chain {
	c := &Chain{strategies: make([]Strategy, 0, len(strategies))}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// Name implements [Strategy].
func (c *Chain) Name() string { return "chain" }

// Match implements [Strategy].
func (c *Chain) Match(ctx context.Context, utterance string) []order.Item {
	items, _ := c.Run(ctx, utterance)
	return items
}

// Run behaves like [Chain.Match] and additionally returns the name of the
// stage that produced the result, or "" when every strategy came back empty.
// The stage is the strategy's name unless it implements [Staged]. Run stops
// early once ctx is done.
func (c *Chain) Run(ctx context.Context, utterance string) ([]order.Item, string) {
	if utterance == "" {
		return nil, ""
	}
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			return nil, ""
		}
		if st, ok := s.(Staged); ok {
			if items, stage := st.MatchStage(ctx, utterance); len(items) > 0 {
				return items, stage
			}
			continue
		}
		if items := s.Match(ctx, utterance); len(items) > 0 {
			return items, s.Name()
		}
	}
	return nil, ""
}

// Strategies returns the names of the configured strategies in run order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}
