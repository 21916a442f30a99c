// Package order defines the structured order produced from a caller's
// utterance and the assembler that computes its authoritative total.
//
// The total of an [Order] is always derived from catalog prices. Any total
// reported by an upstream component (such as a language model) is ignored.
package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/callorder/internal/menu"
)

// Item is one line of an order: a canonical catalog name and a positive
// quantity.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order is an assembled, priced order. An order with no items means no
// recognisable items were found; it is not an error.
type Order struct {
	Items []Item          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Empty reports whether the order contains no items.
func (o Order) Empty() bool { return len(o.Items) == 0 }

// Summary renders the items as "2 x chicken baguette, 1 x coke".
func (o Order) Summary() string {
	parts := make([]string, len(o.Items))
	for i, it := range o.Items {
		parts[i] = fmt.Sprintf("%d x %s", it.Quantity, it.Name)
	}
	return strings.Join(parts, ", ")
}

// TotalString renders the total with exactly two decimal places.
func (o Order) TotalString() string {
	return o.Total.StringFixed(2)
}

// Assemble builds an [Order] from candidate items. Names not present in
// catalog and non-positive quantities are dropped, duplicate names are merged
// in first-seen order by summing quantities, and the total is recomputed from
// catalog prices and rounded to two decimal places.
func Assemble(catalog *menu.Catalog, items []Item) Order {
	merged := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))

	for _, it := range items {
		if it.Quantity <= 0 || !catalog.Contains(it.Name) {
			continue
		}
		if i, ok := index[it.Name]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.Name] = len(merged)
		merged = append(merged, it)
	}

	total := decimal.Zero
	for _, it := range merged {
		price, _ := catalog.Price(it.Name)
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if len(merged) == 0 {
		merged = nil
	}
	return Order{Items: merged, Total: total.Round(2)}
}
