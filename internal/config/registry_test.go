package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/callorder/internal/config"
	"github.com/MrWong99/callorder/internal/notify"
	notifymock "github.com/MrWong99/callorder/internal/notify/mock"
	"github.com/MrWong99/callorder/pkg/provider/llm"
	llmmock "github.com/MrWong99/callorder/pkg/provider/llm/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLLM("anthropic", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("no key")
	})
	reg.RegisterNotifier("mock", func(config.ProviderEntry) (notify.Notifier, error) {
		return &notifymock.Notifier{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "gpt-4o-mini" {
		t.Errorf("factory entry model = %q", gotEntry.Model)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "anthropic"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(anthropic) = %v, want factory error", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM(nope) = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateNotifier(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateNotifier: %v", err)
	}
	if _, err := reg.CreateNotifier(config.ProviderEntry{Name: "smtp"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateNotifier(smtp) = %v, want ErrProviderNotRegistered", err)
	}
	if got := reg.LLMNames(); !slices.Equal(got, []string{"anthropic", "openai"}) {
		t.Errorf("LLMNames() = %v", got)
	}
}
