// Package llm defines the chat-completion capability the script
// assembler consumes, plus an OpenAI-compatible HTTP implementation.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes one chat call.
type Options struct {
	// ResponseFormat "json_object" asks the model for strict JSON.
	ResponseFormat string
	Temperature    *float64
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed chat response.
type Result struct {
	Content string
	Usage   *Usage
}

// ChatProvider is the blocking chat capability.
type ChatProvider interface {
	Chat(ctx context.Context, messages []Message, opts Options) (*Result, error)
}

// StreamProvider is the optional streaming variant. OnDelta receives
// content fragments as they arrive; the full result is returned at
// the end.
type StreamProvider interface {
	ChatStream(ctx context.Context, messages []Message, opts Options, onDelta func(string)) (*Result, error)
}
