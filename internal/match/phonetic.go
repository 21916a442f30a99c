package match

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/order"
)

const defaultPhoneticThreshold = 0.6

// PhoneticOption configures a [Phonetic] strategy.
type PhoneticOption func(*Phonetic)

// WithThreshold sets the Jaro-Winkler score a window must exceed to be
// accepted as an item. Default: 0.6.
func WithThreshold(threshold float64) PhoneticOption {
	return func(p *Phonetic) {
		p.threshold = threshold
	}
}

// minFuzzyCode is the shortest Double Metaphone code compared by similarity.
// Shorter codes must match exactly: "KF" (coffee) and "KK" (coke) already
// share half their letters.
const minFuzzyCode = 3

// Phonetic recognises items that were transcribed the way they sound rather
// than the way they are spelled ("tunna baggett", "a cook").
//
// Every word of a catalog phrase is reduced to its primary Double Metaphone
// code. Quantity and filler words are removed from the utterance, and every
// window with the same word count as a phrase is compared word by word. Each
// pair of codes must start with the same sound. Codes shorter than three
// letters must be equal, longer ones must score above the threshold. The
// window's score is the mean over its words. Larger phrases claim their words
// first, then higher scores.
//
// Phonetic is read-only after construction and safe for concurrent use.
type Phonetic struct {
	threshold float64
	targets   []phoneticTarget
}

type phoneticTarget struct {
	canonical string
	codes     []string
}

// NewPhonetic returns a [Phonetic] strategy over the names and aliases of
// table.
func NewPhonetic(table *menu.AliasTable, opts ...PhoneticOption) *Phonetic {
	p := &Phonetic{threshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(p)
	}
	for _, ph := range table.Phrases() {
		codes := codesOf(strings.Fields(ph.Text))
		if slices.Contains(codes, "") {
			continue
		}
		p.targets = append(p.targets, phoneticTarget{canonical: ph.Canonical, codes: codes})
	}
	return p
}

// Name implements [Strategy].
func (p *Phonetic) Name() string { return "phonetic" }

type candidate struct {
	canonical string
	start     int // index into the content word list
	words     int
	score     float64
}

// Match implements [Strategy].
func (p *Phonetic) Match(_ context.Context, utterance string) []order.Item {
	return spoken(p.find(strings.Fields(utterance), nil))
}

// find matches the tokens not marked in claimed. A window never spans a
// claimed token. claimed may be nil.
func (p *Phonetic) find(tokens []string, claimed []bool) []hit {
	type word struct {
		idx  int    // position in tokens
		seg  int    // run of unclaimed tokens the word belongs to
		code string // primary Double Metaphone code
	}
	content := make([]word, 0, len(tokens))
	seg := 0
	for i, tok := range tokens {
		if claimed != nil && claimed[i] {
			seg++
			continue
		}
		if !isFiller(tok) {
			primary, _ := matchr.DoubleMetaphone(tok)
			content = append(content, word{idx: i, seg: seg, code: primary})
		}
	}
	if len(content) == 0 {
		return nil
	}

	var cands []candidate
	for _, t := range p.targets {
		n := len(t.codes)
		for start := 0; start+n <= len(content); start++ {
			if content[start].seg != content[start+n-1].seg {
				continue
			}
			total := 0.0
			ok := true
			for k, want := range t.codes {
				s, same := p.compare(content[start+k].code, want)
				if !same {
					ok = false
					break
				}
				total += s
			}
			if !ok {
				continue
			}
			score := total / float64(n)
			if score <= p.threshold {
				continue
			}
			cands = append(cands, candidate{canonical: t.canonical, start: start, words: n, score: score})
		}
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		if d := cmp.Compare(b.words, a.words); d != 0 {
			return d
		}
		if d := cmp.Compare(b.score, a.score); d != 0 {
			return d
		}
		return cmp.Compare(a.start, b.start)
	})

	used := make([]bool, len(content))
	seen := make(map[string]bool)
	var hits []hit
	for _, c := range cands {
		if seen[c.canonical] || slices.Contains(used[c.start:c.start+c.words], true) {
			continue
		}
		seen[c.canonical] = true
		for k := c.start; k < c.start+c.words; k++ {
			used[k] = true
		}
		first := content[c.start].idx
		hits = append(hits, hit{
			pos:  first,
			item: order.Item{Name: c.canonical, Quantity: quantityBefore(tokens[:first])},
		})
	}
	return hits
}

// compare scores one spoken code against one catalog code.
func (p *Phonetic) compare(got, want string) (float64, bool) {
	if got == "" || got[0] != want[0] {
		return 0, false
	}
	if len(got) < minFuzzyCode || len(want) < minFuzzyCode {
		if got != want {
			return 0, false
		}
		return 1, true
	}
	score := matchr.JaroWinkler(got, want, false)
	return score, score > p.threshold
}

// codesOf returns the primary Double Metaphone code of each word.
func codesOf(words []string) []string {
	codes := make([]string, len(words))
	for i, w := range words {
		codes[i], _ = matchr.DoubleMetaphone(w)
	}
	return codes
}
