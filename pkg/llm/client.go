// Package llm wraps the LLM backend behind a narrow client interface.
// The engine consumes completions either synchronously or as a channel
// of stream chunks; the transport (an OpenAI-compatible API) is an
// implementation detail of this package.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one generation call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is the result of a synchronous generation call.
type CompletionResponse struct {
	Content      string
	TokensUsed   int
	FinishReason string
}

// Truncated reports whether the model stopped because it hit the token
// limit rather than finishing naturally.
func (r CompletionResponse) Truncated() bool {
	return r.FinishReason == "length"
}

// StreamChunk is one unit of a streaming generation.
type StreamChunk struct {
	Content      string
	IsFinal      bool
	FinishReason string
}

// Client is the generation contract. Implementations must honour
// context cancellation at every chunk boundary.
type Client interface {
	// Complete performs a synchronous generation call.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Stream starts a streaming generation. The chunk channel is closed
	// when the stream ends; at most one error is sent on the error channel.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, <-chan error)
}

// Embedder produces dense vectors for vector search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
