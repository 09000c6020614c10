package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"maestro/internal/ports"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// tokenCount estimates tokens with the cl100k_base encoding. Provider
// tokenizers differ, but for local bookkeeping the estimate is close enough.
func tokenCount(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		// Offline fallback: ~4 bytes per token for English text.
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// EstimateUsage reconstructs token usage locally when the provider omits it.
func EstimateUsage(model string, messages []ports.Message, completion string) ports.TokenUsage {
	prompt := 0
	for _, m := range messages {
		// Per-message framing overhead mirrors the OpenAI chat format.
		prompt += tokenCount(m.Content) + 4
	}
	out := tokenCount(completion)
	return ports.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

// CountMessageTokens estimates the total tokens of a message window. Used by
// the session memory to keep the window under its token ceiling.
func CountMessageTokens(messages []ports.Message) int {
	total := 0
	for _, m := range messages {
		total += tokenCount(m.Content) + 4
	}
	return total
}
