// ABOUTME: Completion capability types shared by the session and the HTTP client
// ABOUTME: A Completer turns a role-scoped prompt into a single assistant reply

package completion

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when the service answers without any choice.
var ErrEmptyReply = errors.New("completion returned no choices")

// Message roles understood by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage reports the tokens consumed by a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the assistant's answer.
type Reply struct {
	Content string
	Usage   Usage
}

// Completer produces an assistant reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Reply, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Reply, error) {
	return f(ctx, req)
}
