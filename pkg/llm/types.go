// Package llm defines the model-facing client interface used by the dialog
// stages, plus its Google GenAI implementation.
package llm

import "context"

// Conversation roles understood by Client implementations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one turn of the prompt conversation.
type ConversationMessage struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// GenerateInput describes a single model call.
type GenerateInput struct {
	Model        string
	SystemPrompt string
	Messages     []ConversationMessage

	// Temperature overrides the model default when set.
	Temperature *float32
	// MaxTokens caps the response length. Zero means the model default.
	MaxTokens int32
	// ResponseMIMEType is "application/json" for stages that parse the
	// response as a document, empty for conversational stages.
	ResponseMIMEType string
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Response is the complete model output for one call.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the interface dialog stages use for text generation.
type Client interface {
	// Generate sends a conversation to the model and returns the complete
	// response. Implementations handle retries and pacing internally.
	Generate(ctx context.Context, input *GenerateInput) (*Response, error)

	// Close releases any resources held by the client.
	Close() error
}
