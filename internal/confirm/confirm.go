// Package confirm classifies a caller's reply to the order read-back as yes,
// no, or unrecognised.
//
// Classification runs in tiers, stopping at the first decisive one:
//
//  1. The whole cleaned phrase is a vocabulary entry ("yes", "no thanks").
//  2. Individual words are vocabulary entries ("yes please"). Idioms such as
//     "no problem" are removed first and never count as a refusal. Words
//     from both vocabularies make the reply ambiguous and it is unrecognised.
//  3. The phrase or one of its words is close to a vocabulary entry by
//     Jaro-Winkler similarity ("yess", "nop"). Only words of three or more
//     letters take part. The closest entry decides.
//
// Anything else is unrecognised.
package confirm

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/callorder/internal/normalize"
)

const (
	defaultCutoff = 0.7

	// minFuzzyLen is the shortest word compared by similarity. "on" is
	// otherwise close enough to "ok" to confirm an order.
	minFuzzyLen = 3
)

// Result is the outcome of classifying a confirmation reply.
type Result int

const (
	Unrecognized Result = iota
	Yes
	No
)

// String returns "yes", "no" or "unrecognized".
func (r Result) String() string {
	switch r {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unrecognized"
	}
}

// DefaultYes lists the affirmative vocabulary used when none is configured.
func DefaultYes() []string {
	return []string{"yes", "yeah", "yep", "yup", "confirm", "sure", "ok", "okay", "affirmative", "correct"}
}

// DefaultNo lists the negative vocabulary used when none is configured.
func DefaultNo() []string {
	return []string{"no", "nah", "nope", "cancel", "negative", "not", "wrong"}
}

// DefaultIdioms lists phrases that contain a negative word without refusing
// anything.
func DefaultIdioms() []string {
	return []string{"no problem", "no problems", "no worries", "no bother", "not a problem", "no doubt"}
}

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithCutoff sets the minimum Jaro-Winkler similarity for the fuzzy tier.
// Default: 0.7.
func WithCutoff(cutoff float64) Option {
	return func(c *Classifier) {
		c.cutoff = cutoff
	}
}

// WithIdioms replaces [DefaultIdioms].
func WithIdioms(idioms ...string) Option {
	return func(c *Classifier) {
		c.idioms = c.idioms[:0]
		for _, i := range idioms {
			if words := strings.Fields(normalize.Clean(i)); len(words) > 0 {
				c.idioms = append(c.idioms, words)
			}
		}
	}
}

type entry struct {
	word   string
	result Result
}

// Classifier is read-only after construction and safe for concurrent use.
type Classifier struct {
	vocab  map[string]Result
	union  []entry
	idioms [][]string
	cutoff float64
}

// New builds a [Classifier] from the yes and no vocabularies. Entries are
// cleaned like replies are; an entry present in both lists is rejected.
func New(yes, no []string, opts ...Option) (*Classifier, error) {
	c := &Classifier{
		vocab:  make(map[string]Result, len(yes)+len(no)),
		cutoff: defaultCutoff,
	}
	WithIdioms(DefaultIdioms()...)(c)
	for _, o := range opts {
		o(c)
	}

	var errs []error
	add := func(words []string, r Result) {
		for _, w := range words {
			w = normalize.Clean(w)
			if w == "" {
				continue
			}
			if prev, ok := c.vocab[w]; ok {
				if prev != r {
					errs = append(errs, fmt.Errorf("confirm: %q is in both vocabularies", w))
				}
				continue
			}
			c.vocab[w] = r
			c.union = append(c.union, entry{word: w, result: r})
		}
	}
	add(yes, Yes)
	add(no, No)

	if len(c.union) == 0 {
		errs = append(errs, errors.New("confirm: vocabularies must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a [Classifier] over [DefaultYes] and [DefaultNo].
func Default() *Classifier {
	c, err := New(DefaultYes(), DefaultNo())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the meaning of reply.
func (c *Classifier) Classify(reply string) Result {
	phrase := normalize.Clean(reply)
	if phrase == "" {
		return Unrecognized
	}

	if r, ok := c.vocab[phrase]; ok {
		return r
	}

	tokens := c.dropIdioms(strings.Fields(phrase))
	var sawYes, sawNo bool
	for _, tok := range tokens {
		switch c.vocab[tok] {
		case Yes:
			sawYes = true
		case No:
			sawNo = true
		}
	}
	switch {
	case sawYes && sawNo:
		return Unrecognized
	case sawYes:
		return Yes
	case sawNo:
		return No
	}

	best, bestScore := Unrecognized, 0.0
	candidates := append([]string{strings.Join(tokens, " ")}, tokens...)
	for _, cand := range candidates {
		if len(cand) < minFuzzyLen {
			continue
		}
		for _, e := range c.union {
			if len(e.word) < minFuzzyLen {
				continue
			}
			if s := matchr.JaroWinkler(cand, e.word, false); s > bestScore {
				best, bestScore = e.result, s
			}
		}
	}
	if bestScore >= c.cutoff {
		return best
	}
	return Unrecognized
}

// dropIdioms removes every idiom occurrence from tokens.
func (c *Classifier) dropIdioms(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n := c.idiomAt(tokens[i:])
		if n == 0 {
			out = append(out, tokens[i])
			n = 1
		}
		i += n
	}
	return out
}

// idiomAt returns the length of the longest idiom tokens starts with, or 0.
func (c *Classifier) idiomAt(tokens []string) int {
	longest := 0
	for _, idiom := range c.idioms {
		if len(idiom) > longest && len(idiom) <= len(tokens) && slices.Equal(tokens[:len(idiom)], idiom) {
			longest = len(idiom)
		}
	}
	return longest
}
