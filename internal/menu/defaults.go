package menu

import "github.com/shopspring/decimal"

// DefaultPrices is the menu of Baguette de Moet Andover, used when the
// configuration does not declare its own items.
func DefaultPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"tuna baguette":    decimal.RequireFromString("4.99"),
		"chicken baguette": decimal.RequireFromString("5.99"),
		"fries":            decimal.RequireFromString("2.50"),
		"large fries":      decimal.RequireFromString("3.00"),
		"coke":             decimal.RequireFromString("1.20"),
		"fanta":            decimal.RequireFromString("1.20"),
	}
}

// DefaultAliases lists common spoken variants for the default menu.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"fries":       {"chips"},
		"large fries": {"large chips"},
		"coke":        {"cola"},
	}
}

// Default returns the default catalog together with its alias table.
func Default() (*Catalog, *AliasTable) {
	c, err := NewCatalog(DefaultPrices())
	if err != nil {
		panic(err)
	}
	t, err := NewAliasTable(c, DefaultAliases())
	if err != nil {
		panic(err)
	}
	return c, t
}
