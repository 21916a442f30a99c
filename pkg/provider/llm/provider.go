// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Ollama, ...)
// and exposes a single blocking completion call. The order extraction fallback
// is the only consumer: it sends one prompt per caller turn and expects one
// JSON object back, so streaming and tool calling are deliberately absent.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message is a single message in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message drives the reply.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction sent before
	// Messages. Providers without a native system slot prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Zero keeps the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a single JSON object.
	// Providers that cannot honour it ignore the flag; callers must still
	// validate the reply.
	JSONMode bool
}

// CompletionResponse is returned by [Provider.Complete].
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes static properties of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode reports whether [CompletionRequest.JSONMode] is honoured.
	SupportsJSONMode bool
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and must return promptly
// once ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata for the configured model. The
	// result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
