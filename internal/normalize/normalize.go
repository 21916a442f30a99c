// Package normalize canonicalises raw speech-to-text output before menu
// matching.
//
// A [Normalizer] lowercases the text, turns punctuation (apart from
// apostrophes) into spaces, collapses whitespace and then applies a table of
// known mis-transcriptions such as "bagette" → "baguette". The result is a
// fixpoint: normalising an already normalised string returns it unchanged.
package normalize

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// maxPasses bounds the substitution loop. Valid tables reach a fixpoint in one
// or two passes; the bound only matters for replacements that form a new
// source together with neighbouring text.
const maxPasses = 8

// DefaultSubstitutions are the mis-transcriptions applied when the
// configuration does not override them.
func DefaultSubstitutions() map[string]string {
	return map[string]string{
		"bagette":   "baguette",
		"baggette":  "baguette",
		"big fries": "large fries",
		"coca cola": "coke",
	}
}

// Substitution replaces every occurrence of From with To.
type Substitution struct {
	From string
	To   string
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	table    []Substitution
	replacer *strings.Replacer
}

// New builds a [Normalizer] from a source → replacement table. Keys and values
// are cleaned the same way utterances are, then ordered longest source first.
// New rejects empty sources and any replacement that contains a source, since
// such a table could never settle.
func New(subs map[string]string) (*Normalizer, error) {
	table := make([]Substitution, 0, len(subs))
	var errs []error
	for from, to := range subs {
		f, t := Clean(from), Clean(to)
		if f == "" {
			errs = append(errs, fmt.Errorf("normalize: empty substitution source (replacement %q)", to))
			continue
		}
		table = append(table, Substitution{From: f, To: t})
	}
	for _, s := range table {
		for _, other := range table {
			if other.From != "" && strings.Contains(s.To, other.From) {
				errs = append(errs, fmt.Errorf("normalize: replacement %q for %q contains source %q", s.To, s.From, other.From))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	slices.SortFunc(table, func(a, b Substitution) int {
		if d := cmp.Compare(len(b.From), len(a.From)); d != 0 {
			return d
		}
		return strings.Compare(a.From, b.From)
	})

	pairs := make([]string, 0, len(table)*2)
	for _, s := range table {
		pairs = append(pairs, s.From, s.To)
	}
	return &Normalizer{table: table, replacer: strings.NewReplacer(pairs...)}, nil
}

// Default returns a [Normalizer] using [DefaultSubstitutions].
func Default() *Normalizer {
	n, err := New(DefaultSubstitutions())
	if err != nil {
		panic(err)
	}
	return n
}

// Table returns the substitutions in application order.
func (n *Normalizer) Table() []Substitution {
	return slices.Clone(n.table)
}

// Normalize returns the canonical form of s.
func (n *Normalizer) Normalize(s string) string {
	out := Clean(s)
	if len(n.table) == 0 {
		return out
	}
	for range maxPasses {
		next := collapse(n.replacer.Replace(out))
		if next == out {
			break
		}
		out = next
	}
	return out
}

// Clean lowercases s, replaces punctuation and symbols other than apostrophes
// with spaces, collapses runs of whitespace and trims the result.
func Clean(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return '\''
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			return ' '
		default:
			return unicode.ToLower(r)
		}
	}, s)
	return collapse(mapped)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
