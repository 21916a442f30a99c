package interpret_test

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/callorder/internal/extract"
	"github.com/MrWong99/callorder/internal/interpret"
	"github.com/MrWong99/callorder/internal/match"
	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/normalize"
	"github.com/MrWong99/callorder/internal/order"
	"github.com/MrWong99/callorder/pkg/provider/llm"
	"github.com/MrWong99/callorder/pkg/provider/llm/mock"
)

func newInterpreter(t *testing.T, provider llm.Provider) *interpret.Interpreter {
	t.Helper()
	catalog, aliases := menu.Default()
	ex, err := extract.New(provider, aliases)
	if err != nil {
		t.Fatal(err)
	}
	chain := match.NewChain(match.NewLocal(aliases), ex)
	return interpret.New(normalize.Default(), chain, catalog, nil)
}

func TestInterpret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		utterance string
		wantItems []order.Item
		wantTotal string
		wantStage string
	}{
		{
			name:      "exact item name",
			utterance: "Tuna baguette",
			wantItems: []order.Item{{Name: "tuna baguette", Quantity: 1}},
			wantTotal: "4.99",
			wantStage: "exact",
		},
		{
			name:      "quantities",
			utterance: "Two chicken baguettes and a Coke, please.",
			wantItems: []order.Item{{Name: "chicken baguette", Quantity: 2}, {Name: "coke", Quantity: 1}},
			wantTotal: "13.18",
			wantStage: "exact",
		},
		{
			name:      "misspelling fixed by normalizer",
			utterance: "one chicken bagette",
			wantItems: []order.Item{{Name: "chicken baguette", Quantity: 1}},
			wantTotal: "5.99",
			wantStage: "exact",
		},
		{
			name:      "phonetic",
			utterance: "a cook please",
			wantItems: []order.Item{{Name: "coke", Quantity: 1}},
			wantTotal: "1.20",
			wantStage: "phonetic",
		},
		{
			name:      "exact and phonetic in one order",
			utterance: "A Coke and a tunna baggett.",
			wantItems: []order.Item{{Name: "coke", Quantity: 1}, {Name: "tuna baguette", Quantity: 1}},
			wantTotal: "6.19",
			wantStage: "exact+phonetic",
		},
		{
			name:      "blank",
			utterance: "   ",
			wantTotal: "0.00",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			provider := &mock.Provider{}
			in := newInterpreter(t, provider)

			res := in.Interpret(context.Background(), tc.utterance)
			if !slices.Equal(res.Order.Items, tc.wantItems) {
				t.Errorf("items = %+v, want %+v", res.Order.Items, tc.wantItems)
			}
			if res.Order.TotalString() != tc.wantTotal {
				t.Errorf("total = %s, want %s", res.Order.TotalString(), tc.wantTotal)
			}
			if res.Stage != tc.wantStage {
				t.Errorf("stage = %q, want %q", res.Stage, tc.wantStage)
			}
			if provider.Calls() != 0 {
				t.Errorf("extraction provider called %d times, want 0", provider.Calls())
			}
		})
	}
}

func TestInterpret_EveryCatalogItemByName(t *testing.T) {
	t.Parallel()

	catalog, _ := menu.Default()
	for _, name := range catalog.Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			provider := &mock.Provider{}
			in := newInterpreter(t, provider)
			price, _ := catalog.Price(name)

			res := in.Interpret(context.Background(), name)
			if !slices.Equal(res.Order.Items, []order.Item{{Name: name, Quantity: 1}}) {
				t.Errorf("items = %+v, want one %s", res.Order.Items, name)
			}
			if got, want := res.Order.TotalString(), price.StringFixed(2); got != want {
				t.Errorf("total = %s, want %s", got, want)
			}
			if provider.Calls() != 0 {
				t.Errorf("extraction provider called %d times, want 0", provider.Calls())
			}
		})
	}
}

func TestInterpret_FallbackTotalsAreAuthoritative(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"items":[{"name":"large fries","quantity":2},{"name":"lobster","quantity":1}],"total":1000}`,
		},
	}
	in := newInterpreter(t, provider)

	res := in.Interpret(context.Background(), "the big potato thing twice please")
	if res.Stage != "extraction" {
		t.Fatalf("stage = %q, want extraction", res.Stage)
	}
	if !slices.Equal(res.Order.Items, []order.Item{{Name: "large fries", Quantity: 2}}) {
		t.Errorf("items = %+v", res.Order.Items)
	}
	if res.Order.TotalString() != "6.00" {
		t.Errorf("total = %s, want 6.00", res.Order.TotalString())
	}
}

func TestInterpret_NothingRecognised(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"items":[],"total":0}`},
	}
	in := newInterpreter(t, provider)

	res := in.Interpret(context.Background(), "hello there")
	if !res.Order.Empty() {
		t.Errorf("items = %+v, want none", res.Order.Items)
	}
	if res.Stage != "" {
		t.Errorf("stage = %q, want empty", res.Stage)
	}
	if provider.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.Calls())
	}
}
