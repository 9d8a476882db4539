package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const maxRetries = 3

func newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2.0
	eb.MaxInterval = 30 * time.Second
	eb.RandomizationFactor = 0.2 // 20% jitter
	eb.Reset()
	return backoff.WithMaxRetries(eb, maxRetries)
}

// WithRetry wraps a Client with exponential backoff. Rate-limit and
// server-side errors are retried; everything else fails immediately.
func WithRetry(client Client, logger zerolog.Logger) Client {
	return &retryClient{
		inner:  client,
		logger: logger.With().Str("component", "llm_retry").Logger(),
	}
}

type retryClient struct {
	inner  Client
	logger zerolog.Logger
}

func (c *retryClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	operation := func() error {
		var err error
		resp, err = c.inner.Complete(ctx, req)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn().Err(err).Msg("Completion failed, retrying")
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// WithEmbedRetry wraps an Embedder with the same backoff policy as WithRetry.
func WithEmbedRetry(embedder Embedder, logger zerolog.Logger) Embedder {
	return &retryEmbedder{
		inner:  embedder,
		logger: logger.With().Str("component", "llm_retry").Logger(),
	}
}

type retryEmbedder struct {
	inner  Embedder
	logger zerolog.Logger
}

func (e *retryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	operation := func() error {
		var err error
		vec, err = e.inner.Embed(ctx, text)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn().Err(err).Msg("Embedding failed, retrying")
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return vec, nil
}
