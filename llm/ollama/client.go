// Package ollama implements the llm contract against a local or remote
// Ollama server, the default backend for the daemon.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/recalld/llm"
)

// Client implements llm.Client using Ollama's chat API.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a chat-completion client. If host is empty the client is
// configured from the environment (OLLAMA_HOST or http://localhost:11434).
func NewClient(host, model string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: chat model is required")
	}
	cli, err := newAPIClient(host)
	if err != nil {
		return nil, err
	}
	return &Client{client: cli, model: model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("ollama: request is required")
	}

	msgs := make([]api.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   boolPtr(false),
	}
	if req.Temperature != nil {
		chatReq.Options = map[string]any{"temperature": *req.Temperature}
	}

	var b strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, classify("ollama: chat completion failed", err)
	}

	return &llm.Response{Text: b.String()}, nil
}

// Embedder implements llm.Embedder using Ollama's embed API.
type Embedder struct {
	client *api.Client
	model  string
}

// NewEmbedder creates an embedding client against the same host rules as
// NewClient.
func NewEmbedder(host, model string) (*Embedder, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: embed model is required")
	}
	cli, err := newAPIClient(host)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: cli, model: model}, nil
}

// Embed implements llm.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, classify("ollama: embedding failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, llm.NewProviderError("ollama: empty embedding response", 0, nil)
	}
	return resp.Embeddings[0], nil
}

func newAPIClient(host string) (*api.Client, error) {
	if host == "" {
		cli, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: create client: %w", err)
		}
		return cli, nil
	}
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host: %w", err)
	}
	return api.NewClient(baseURL, &http.Client{}), nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// classify maps Ollama SDK errors onto the llm error taxonomy.
func classify(message string, err error) *llm.Error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError(message, err)
		}
		return llm.NewProviderError(message, statusErr.StatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llm.Error{Type: llm.ErrorTypeTimeout, Message: message, Retryable: true, ProviderErr: err}
	}
	return llm.NewNetworkError(message, err)
}

func boolPtr(b bool) *bool { return &b }
