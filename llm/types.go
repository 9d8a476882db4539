// Package llm defines the provider-neutral contract for the completion and
// embedding backends the memory pipeline depends on. Providers live in
// subpackages and translate these types to their own APIs.
package llm

import "context"

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single role-tagged text segment in a prompt.
type Message struct {
	Role    MessageRole
	Content string
}

// Request is a complete chat-completion request. Message order is
// significant: providers must send messages exactly as given.
type Request struct {
	Messages    []Message
	Temperature *float64 // Optional override; providers use their default when nil
}

// Response is a complete chat-completion response.
type Response struct {
	Text string
}

// Client is a provider-neutral chat-completion backend.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Embedder turns text into a fixed-length vector. Implementations return an
// error on any transport or provider failure, never a silently wrong vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
