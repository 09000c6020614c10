package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"maestro/internal/roles"
)

// MaterializePlanFile writes the Markdown checklist artifact for a confirmed
// plan and returns its filename. One checklist line per step, all pending.
func MaterializePlanFile(dir, query, humanSummary string, steps []roles.PlanStep) (string, error) {
	now := time.Now()
	filename := fmt.Sprintf("_plan_%s.md", now.Format("20060102_150405"))

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Plan ID: %s\n", now.Format("20060102150405"))
	fmt.Fprintf(&b, "- Query: %s\n", strings.ReplaceAll(query, "\n", " "))
	if humanSummary != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", strings.ReplaceAll(humanSummary, "\n", " "))
	}
	b.WriteString("\n")

	for _, step := range steps {
		fmt.Fprintf(&b, "- [ ] %d. %s", step.StepID, step.Description)
		var hints []string
		if step.ToolHint != "" {
			hints = append(hints, "tool: "+step.ToolHint)
		}
		if step.InputHint != "" {
			hints = append(hints, "input: "+step.InputHint)
		}
		if len(hints) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(hints, "; "))
		}
		b.WriteString("\n")
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write plan file: %w", err)
	}
	return filename, nil
}

// PatchPlanStatus rewrites exactly the bracket character of one step's
// checklist line. The rest of the line is preserved byte for byte.
func PatchPlanStatus(dir, filename string, stepID int, status rune) error {
	path := filepath.Join(dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan file: %w", err)
	}

	pattern, err := regexp.Compile(fmt.Sprintf(`^(\s*-\s*\[)[ x!-](\]\s*%d\.\s+)`, stepID))
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	patched := false
	for i, line := range lines {
		if pattern.MatchString(line) {
			lines[i] = pattern.ReplaceAllString(line, "${1}"+string(status)+"${2}")
			patched = true
			break
		}
	}
	if !patched {
		return fmt.Errorf("plan file has no line for step %d", stepID)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
