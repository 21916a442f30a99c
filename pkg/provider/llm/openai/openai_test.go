package openai

import (
	"testing"

	"github.com/MrWong99/callorder/pkg/provider/llm"
)

func TestNew_RequiresAPIKeyAndModel(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o-mini", WithBaseURL("http://localhost:1234/v1"), WithTimeout(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "system", Content: "You are helpful."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "user", Content: "two cokes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "assistant", Content: "{}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role, got nil")
	}
}

func TestBuildParams_JSONMode(t *testing.T) {
	p, err := New("sk-test", "gpt-4o")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "extract",
		Messages:     []llm.Message{{Role: "user", Content: "a coke"}},
		Temperature:  0.1,
		MaxTokens:    200,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format for gpt-4o")
	}
}

func TestBuildParams_JSONModeIgnoredForUnsupportedModel(t *testing.T) {
	p, err := New("sk-test", "gpt-4")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "a coke"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject != nil {
		t.Error("gpt-4 should not request JSON object format")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model    string
		window   int
		jsonMode bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"gpt-4", 8_192, false},
		{"gpt-3.5-turbo", 16_385, true},
		{"o1-mini", 128_000, false},
		{"o3", 200_000, true},
		{"some-future-model", 128_000, true},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			caps := modelCapabilities(tc.model)
			if caps.ContextWindow != tc.window {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tc.window)
			}
			if caps.SupportsJSONMode != tc.jsonMode {
				t.Errorf("SupportsJSONMode = %v, want %v", caps.SupportsJSONMode, tc.jsonMode)
			}
			if caps.MaxOutputTokens <= 0 {
				t.Error("expected MaxOutputTokens > 0")
			}
		})
	}
}
