package llm

import (
	"context"
	"errors"
	"time"

	"maestro/internal/logging"
	"maestro/internal/ports"
)

// retryClient wraps an LLM client with bounded retries on transient errors.
type retryClient struct {
	underlying ports.LLMClient
	maxRetries int
	baseDelay  time.Duration
	logger     logging.Logger
}

// NewRetryClient wraps client so that transient failures are retried up to
// maxRetries times with linear backoff. Cancellation is never retried.
func NewRetryClient(client ports.LLMClient, maxRetries int) ports.LLMClient {
	if maxRetries <= 0 {
		return client
	}
	return &retryClient{
		underlying: client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		logger:     logging.NewComponentLogger("LLMRetry"),
	}
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ports.ErrCancelled
			case <-time.After(time.Duration(attempt) * c.baseDelay):
			}
			c.logger.Warn("Retrying LLM call (%d/%d) after: %v", attempt, c.maxRetries, lastErr)
		}

		resp, err := c.underlying.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ports.ErrCancelled) || !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
