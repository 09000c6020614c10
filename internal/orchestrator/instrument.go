package orchestrator

import (
	"context"
	"time"

	"maestro/internal/events"
	"maestro/internal/observability"
	"maestro/internal/ports"
)

// instrumentedClient wraps an LLM handle so every Complete call produces the
// fan-out lifecycle events and the latency metric for its role.
type instrumentedClient struct {
	inner   ports.LLMClient
	role    ports.Role
	fanout  *events.Fanout
	metrics *observability.Metrics
}

func instrument(inner ports.LLMClient, role ports.Role, fanout *events.Fanout, metrics *observability.Metrics) ports.LLMClient {
	return &instrumentedClient{inner: inner, role: role, fanout: fanout, metrics: metrics}
}

func (c *instrumentedClient) Model() string {
	return c.inner.Model()
}

func (c *instrumentedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	c.fanout.Emit(ports.Event{Kind: ports.EventLLMStart, Role: c.role})
	start := time.Now()

	resp, err := c.inner.Complete(ctx, req)

	if c.metrics != nil {
		c.metrics.LLMRequests.WithLabelValues(string(c.role)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.fanout.Emit(ports.Event{Kind: ports.EventLLMError, Role: c.role, Text: err.Error()})
		return nil, err
	}

	c.fanout.Emit(ports.Event{Kind: ports.EventLLMEnd, Role: c.role})
	if !resp.Usage.IsZero() {
		c.fanout.Emit(ports.Event{
			Kind:           ports.EventTokenUsage,
			Role:           c.role,
			Model:          c.inner.Model(),
			Usage:          resp.Usage,
			UsageEstimated: resp.UsageEstimated,
		})
	}
	return resp, nil
}
