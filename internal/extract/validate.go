package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/order"
)

// Kind tags the result of one extraction attempt.
type Kind int

const (
	// Parsed means the reply was valid JSON with the expected shape. Items may
	// still be empty when every entry was dropped.
	Parsed Kind = iota
	// ParseError means the reply was not valid JSON.
	ParseError
	// SchemaError means the reply was JSON but lacked the items or total key,
	// or items was not an array.
	SchemaError
	// ProviderError means the model call itself failed or timed out.
	ProviderError
)

// String returns the snake_case name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case ParseError:
		return "parse_error"
	case SchemaError:
		return "schema_error"
	case ProviderError:
		return "provider_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the validated result of one extraction attempt.
type Outcome struct {
	Kind Kind

	// Items holds the validated items in reply order. Always empty unless
	// Kind is Parsed.
	Items []order.Item

	// ReportedTotal is the total claimed by the model, kept for diagnostics
	// only. It never influences the order total.
	ReportedTotal string

	// Dropped lists the entries that were discarded, as "name: reason".
	Dropped []string

	// Cached reports whether the outcome was served from the result cache.
	Cached bool

	// Err describes why Kind is not Parsed.
	Err error
}

var errItemsNotArray = errors.New("items is not an array")

// Validate turns a raw model reply into an [Outcome]. Markdown fences are
// stripped, the JSON shape is checked, names are resolved through aliases,
// quantities are coerced to positive integers and the reported total is set
// aside.
func Validate(content string, aliases *menu.AliasTable) Outcome {
	cleaned := stripMarkdown(content)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return Outcome{Kind: ParseError, Err: fmt.Errorf("extract: parse reply: %w", err)}
	}

	rawItems, hasItems := top["items"]
	rawTotal, hasTotal := top["total"]
	switch {
	case !hasItems:
		return Outcome{Kind: SchemaError, Err: errors.New("extract: reply lacks items")}
	case !hasTotal:
		return Outcome{Kind: SchemaError, Err: errors.New("extract: reply lacks total")}
	}

	var entries []map[string]json.RawMessage
	trimmed := bytes.TrimSpace(rawItems)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Outcome{Kind: SchemaError, Err: fmt.Errorf("extract: %w", errItemsNotArray)}
	}
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return Outcome{Kind: SchemaError, Err: fmt.Errorf("extract: decode items: %w", err)}
	}

	out := Outcome{Kind: Parsed, ReportedTotal: strings.TrimSpace(string(rawTotal))}
	for _, e := range entries {
		var name string
		if err := json.Unmarshal(e["name"], &name); err != nil || strings.TrimSpace(name) == "" {
			out.Dropped = append(out.Dropped, "?: missing name")
			continue
		}
		canonical, ok := aliases.Resolve(name)
		if !ok {
			out.Dropped = append(out.Dropped, name+": not on the menu")
			continue
		}
		qty, ok := coerceQuantity(e["quantity"])
		if !ok {
			out.Dropped = append(out.Dropped, name+": invalid quantity")
			continue
		}
		if qty <= 0 {
			out.Dropped = append(out.Dropped, name+": non-positive quantity")
			continue
		}
		out.Items = append(out.Items, order.Item{Name: canonical, Quantity: qty})
	}
	return out
}

// coerceQuantity accepts a JSON number or a string holding a number and
// truncates it towards zero.
func coerceQuantity(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// fenceTags are the language tags accepted after an opening code fence,
// compared case-insensitively.
var fenceTags = []string{"json", "yaml", "txt", "js"}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
		for _, tag := range fenceTags {
			if len(s) >= len(tag) && strings.EqualFold(s[:len(tag)], tag) {
				s = s[len(tag):]
				break
			}
		}
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
