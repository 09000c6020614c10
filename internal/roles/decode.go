package roles

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"maestro/internal/shared/jsonx"
)

// decodeStructured parses a role model's JSON reply into out. Code fences and
// surrounding prose are stripped first; malformed JSON goes through one
// repair pass before failing.
func decodeStructured(raw string, out any) error {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := jsonx.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return fmt.Errorf("repair model output: %w", err)
	}
	if err := jsonx.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// extractJSON returns the outermost {...} span of s, tolerating markdown
// fences and leading commentary.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
