package roles

import (
	"context"
	"strings"

	"maestro/internal/logging"
	"maestro/internal/ports"
)

const intentPrompt = `Classify the user's request into exactly one category.

PLAN: the request needs multiple steps, tool use, file generation, or research.
DIRECT_QA: the request is a simple question answerable in one reply.

Available tools:
%TOOLS%

User request:
%QUERY%

Reply with a JSON object: {"intent": "PLAN"} or {"intent": "DIRECT_QA"}.`

// ClassifyIntent routes a user message. Any failure, transport or parse,
// falls back to PLAN so the richer path handles ambiguity.
func ClassifyIntent(ctx context.Context, client ports.LLMClient, query, toolSummary string) Intent {
	logger := logging.NewComponentLogger("IntentClassifier")

	prompt := strings.NewReplacer("%TOOLS%", toolSummary, "%QUERY%", query).Replace(intentPrompt)
	resp, err := client.Complete(ctx, ports.CompletionRequest{
		Messages:    []ports.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		logger.Warn("Intent call failed, defaulting to PLAN: %v", err)
		return IntentPlan
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := decodeStructured(resp.Content, &parsed); err != nil {
		logger.Warn("Intent output unparsable, defaulting to PLAN: %v", err)
		return IntentPlan
	}
	if strings.EqualFold(strings.TrimSpace(parsed.Intent), string(IntentDirectQA)) {
		return IntentDirectQA
	}
	return IntentPlan
}
