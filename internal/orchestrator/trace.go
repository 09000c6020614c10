package orchestrator

import (
	"fmt"
	"strings"

	"maestro/internal/roles"
)

// Status chars for attempts and steps. These are also the plan-file bracket
// characters, so the two views never diverge.
const (
	StatusPending   = ' '
	StatusSuccess   = 'x'
	StatusFailed    = '!'
	StatusCancelled = '-'
)

// StepAttempt records one controller→executor→evaluator cycle.
type StepAttempt struct {
	Number      int
	Decision    *roles.ControllerDecision
	Instruction string
	Output      string
	Err         string
	Evaluation  *roles.StepEvaluation
	Status      rune
}

// StepTrace is the ordered attempt history of one step.
type StepTrace struct {
	Step        roles.PlanStep
	Attempts    []StepAttempt
	FinalStatus rune
}

// PlanTrace aggregates the whole run.
type PlanTrace struct {
	Steps       []StepTrace
	FinalStatus rune
}

// Render produces the textual trace fed to the overall evaluator.
func (t *PlanTrace) Render() string {
	var b strings.Builder
	for _, st := range t.Steps {
		fmt.Fprintf(&b, "Step %d [%c]: %s\n", st.Step.StepID, st.FinalStatus, st.Step.Description)
		for _, a := range st.Attempts {
			verdict := ""
			if a.Evaluation != nil {
				verdict = a.Evaluation.Assessment
			}
			if a.Err != "" {
				fmt.Fprintf(&b, "  attempt %d [%c] error: %s\n", a.Number, a.Status, a.Err)
			} else {
				fmt.Fprintf(&b, "  attempt %d [%c]: %s\n", a.Number, a.Status, truncateForTrace(a.Output))
			}
			if verdict != "" {
				fmt.Fprintf(&b, "    evaluator: %s\n", verdict)
			}
		}
	}
	return b.String()
}

// LastError returns the most recent attempt error or evaluator assessment of
// a failed run.
func (t *PlanTrace) LastError() string {
	for i := len(t.Steps) - 1; i >= 0; i-- {
		attempts := t.Steps[i].Attempts
		for j := len(attempts) - 1; j >= 0; j-- {
			if attempts[j].Err != "" {
				return attempts[j].Err
			}
			if attempts[j].Evaluation != nil && !attempts[j].Evaluation.AchievedGoal {
				return attempts[j].Evaluation.Assessment
			}
		}
	}
	return "plan failed"
}

func truncateForTrace(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
