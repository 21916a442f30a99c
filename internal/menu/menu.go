// Package menu holds the shop's catalog of orderable items and the alias table
// that maps spoken variants onto canonical item names.
//
// Both types are immutable after construction and safe for concurrent use. A
// configuration reload builds a fresh [Catalog] and [AliasTable] rather than
// mutating the running ones.
package menu

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Catalog maps canonical item names to unit prices.
type Catalog struct {
	prices map[string]decimal.Decimal
	names  []string
}

// NewCatalog validates prices and returns a [Catalog]. Every name must be
// non-empty, lowercase and free of surrounding whitespace; every price must be
// non-negative. All violations are reported together.
func NewCatalog(prices map[string]decimal.Decimal) (*Catalog, error) {
	if len(prices) == 0 {
		return nil, errors.New("menu: catalog must contain at least one item")
	}

	var errs []error
	c := &Catalog{
		prices: make(map[string]decimal.Decimal, len(prices)),
		names:  make([]string, 0, len(prices)),
	}
	for name, price := range prices {
		switch {
		case name == "":
			errs = append(errs, errors.New("menu: item name must not be empty"))
			continue
		case name != strings.ToLower(strings.TrimSpace(name)):
			errs = append(errs, fmt.Errorf("menu: item %q must be lowercase without surrounding whitespace", name))
			continue
		case price.IsNegative():
			errs = append(errs, fmt.Errorf("menu: item %q has negative price %s", name, price))
			continue
		}
		c.prices[name] = price
		c.names = append(c.names, name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	slices.Sort(c.names)
	return c, nil
}

// Price returns the unit price of the canonical item name.
func (c *Catalog) Price(name string) (decimal.Decimal, bool) {
	p, ok := c.prices[name]
	return p, ok
}

// Contains reports whether name is a canonical item of the catalog.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.prices[name]
	return ok
}

// Names returns the canonical item names in lexical order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.names) }

// Prices returns a copy of the name→price mapping.
func (c *Catalog) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Phrase is a spoken form of a catalog item: either its canonical name or one
// of its aliases.
type Phrase struct {
	Text      string
	Canonical string
}

// AliasTable maps aliases to canonical catalog names.
type AliasTable struct {
	catalog   *Catalog
	canonical map[string]string
	byItem    map[string][]string
	phrases   []Phrase
}

// NewAliasTable builds an [AliasTable] for catalog. aliases maps a canonical
// item name to its spoken variants. Construction fails when an alias names an
// unknown item, when one alias would resolve to two different items, or when
// an alias shadows another item's canonical name.
func NewAliasTable(catalog *Catalog, aliases map[string][]string) (*AliasTable, error) {
	if catalog == nil {
		return nil, errors.New("menu: alias table requires a catalog")
	}

	t := &AliasTable{
		catalog:   catalog,
		canonical: make(map[string]string, catalog.Len()),
		byItem:    make(map[string][]string, len(aliases)),
	}
	for _, name := range catalog.names {
		t.canonical[name] = name
	}

	var errs []error
	items := make([]string, 0, len(aliases))
	for item := range aliases {
		items = append(items, item)
	}
	slices.Sort(items)

	for _, item := range items {
		if !catalog.Contains(item) {
			errs = append(errs, fmt.Errorf("menu: aliases given for unknown item %q", item))
			continue
		}
		for _, raw := range aliases[item] {
			alias := strings.ToLower(strings.TrimSpace(raw))
			if alias == "" {
				errs = append(errs, fmt.Errorf("menu: empty alias for item %q", item))
				continue
			}
			if prev, ok := t.canonical[alias]; ok {
				if prev != item {
					errs = append(errs, fmt.Errorf("menu: alias %q is ambiguous between %q and %q", alias, prev, item))
				}
				continue
			}
			t.canonical[alias] = item
			t.byItem[item] = append(t.byItem[item], alias)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	t.phrases = make([]Phrase, 0, len(t.canonical))
	for text, canon := range t.canonical {
		t.phrases = append(t.phrases, Phrase{Text: text, Canonical: canon})
	}
	slices.SortFunc(t.phrases, func(a, b Phrase) int {
		if d := len(b.Text) - len(a.Text); d != 0 {
			return d
		}
		return strings.Compare(a.Text, b.Text)
	})
	return t, nil
}

// Resolve returns the canonical item name for a canonical name or alias. The
// lookup is case-insensitive and ignores surrounding whitespace.
func (t *AliasTable) Resolve(name string) (string, bool) {
	canon, ok := t.canonical[strings.ToLower(strings.TrimSpace(name))]
	return canon, ok
}

// Catalog returns the catalog the table was built for.
func (t *AliasTable) Catalog() *Catalog { return t.catalog }

// Phrases returns every canonical name and alias, longest text first.
func (t *AliasTable) Phrases() []Phrase {
	return slices.Clone(t.phrases)
}

// Aliases returns a copy of the canonical name → aliases mapping. Items
// without aliases are omitted.
func (t *AliasTable) Aliases() map[string][]string {
	out := make(map[string][]string, len(t.byItem))
	for k, v := range t.byItem {
		out[k] = slices.Clone(v)
	}
	return out
}
