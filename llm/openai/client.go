// Package openai implements the llm contract against OpenAI or any
// OpenAI-compatible endpoint (configured via a custom base URL).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/aschepis/recalld/llm"
)

// Config holds connection settings shared by Client and Embedder.
type Config struct {
	APIKey     string
	BaseURL    string // Empty uses the official API
	ChatModel  string
	EmbedModel string
}

// Client implements llm.Client using the chat completions API.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a chat-completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.ChatModel == "" {
		return nil, fmt.Errorf("openai: chat model is required")
	}
	return &Client{client: newAPIClient(cfg), model: cfg.ChatModel}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("openai: request is required")
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify("openai: chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewProviderError("openai: empty completion response", 0, nil)
	}

	return &llm.Response{Text: resp.Choices[0].Message.Content}, nil
}

// Embedder implements llm.Embedder using the embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedding client.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("openai: embed model is required")
	}
	return &Embedder{client: newAPIClient(cfg), model: cfg.EmbedModel}, nil
}

// Embed implements llm.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classify("openai: embedding failed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, llm.NewProviderError("openai: empty embedding response", 0, nil)
	}
	return resp.Data[0].Embedding, nil
}

func newAPIClient(cfg Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// classify maps SDK errors onto the llm error taxonomy.
func classify(message string, err error) *llm.Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError(message, err)
		}
		return llm.NewProviderError(message, apiErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Type: llm.ErrorTypeTimeout, Message: message, Retryable: true, ProviderErr: err}
	}
	return llm.NewNetworkError(message, err)
}
