package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"maestro/internal/events"
	"maestro/internal/llm"
	"maestro/internal/logging"
	"maestro/internal/observability"
	"maestro/internal/ports"
	"maestro/internal/roles"
	"maestro/internal/session"
	"maestro/internal/shared/jsonx"
	"maestro/internal/tools"
	"maestro/internal/tools/builtin"
	"maestro/internal/workspace"
)

// RoleResolver yields the LLM handle for a pipeline role, honoring session
// overrides. *llm.Registry is the production implementation.
type RoleResolver interface {
	Get(role ports.Role, overrides llm.Overrides) (ports.LLMClient, error)
}

// Executor drives confirmed plans and direct QA runs. One instance serves
// every session; all per-run state lives in the trace and the session.
type Executor struct {
	llms       RoleResolver
	tools      *tools.Registry
	workspaces *workspace.Manager
	metrics    *observability.Metrics
	tracer     *observability.TracerProvider
	maxRetries int
	logger     logging.Logger
}

// New wires the executor. maxStepRetries bounds retries per step; the total
// attempt count per step is maxStepRetries+1.
func New(llms RoleResolver, toolReg *tools.Registry, workspaces *workspace.Manager,
	metrics *observability.Metrics, tracer *observability.TracerProvider, maxStepRetries int) *Executor {
	if maxStepRetries < 0 {
		maxStepRetries = 0
	}
	return &Executor{
		llms:       llms,
		tools:      toolReg,
		workspaces: workspaces,
		metrics:    metrics,
		tracer:     tracer,
		maxRetries: maxStepRetries,
		logger:     logging.NewComponentLogger("Orchestrator"),
	}
}

const confidenceWarnThreshold = 0.70

// directQAMaxToolRounds bounds the direct-QA tool loop.
const directQAMaxToolRounds = 6

// ExecuteConfirmedPlan runs the plan state machine. rawSteps is the
// structured plan exactly as confirmed by the client; each entry is parsed
// when its turn comes and a malformed entry terminates the plan.
func (e *Executor) ExecuteConfirmedPlan(ctx context.Context, sess *session.Session,
	fanout *events.Fanout, rawSteps []map[string]any, humanSummary, query string) (*PlanTrace, error) {

	ctx, span := e.tracer.StartSpan(ctx, observability.SpanPlanExecute,
		attribute.String(observability.AttrSessionID, sess.ID),
		attribute.String(observability.AttrTaskID, sess.TaskID()))
	defer span.End()

	trace := &PlanTrace{FinalStatus: StatusSuccess}
	if len(rawSteps) == 0 {
		fanout.AgentFinal("The confirmed plan contained no steps, so there was nothing to execute.")
		return trace, nil
	}

	dir, err := e.workspaces.Resolve(sess.TaskID(), true)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	steps, parseErr := parseSteps(rawSteps)
	planFile, err := MaterializePlanFile(dir, query, humanSummary, steps)
	if err != nil {
		return nil, err
	}
	sess.MarkPlanActive(planFile)
	fanout.ArtifactGenerated(planFile)

	lastOutput := ""
	failed := false
	cancelled := false

	for i := range steps {
		step := steps[i]
		stepTrace := StepTrace{Step: step, FinalStatus: StatusPending}

		if cancelled || failed || e.cancelRequested(ctx, sess) {
			if !cancelled && !failed {
				cancelled = true
			}
			// remaining steps stay pending in the plan file
			trace.Steps = append(trace.Steps, stepTrace)
			continue
		}
		if parseErr != nil && parseErr.stepIndex == i {
			stepTrace.FinalStatus = StatusFailed
			stepTrace.Attempts = append(stepTrace.Attempts, StepAttempt{
				Number: 1, Err: parseErr.err.Error(), Status: StatusFailed,
			})
			e.finishStep(fanout, dir, planFile, step.StepID, &stepTrace)
			trace.Steps = append(trace.Steps, stepTrace)
			failed = true
			continue
		}

		fanout.MajorStep(fmt.Sprintf("Step %d/%d: %s", step.StepID, len(steps), step.Description))
		lastOutput, cancelled, failed = e.runStep(ctx, sess, fanout, &stepTrace, step, query, lastOutput)
		e.finishStep(fanout, dir, planFile, step.StepID, &stepTrace)
		trace.Steps = append(trace.Steps, stepTrace)
	}

	switch {
	case cancelled:
		trace.FinalStatus = StatusCancelled
		fanout.Status("Plan execution cancelled.", false)
		return trace, nil
	case failed:
		trace.FinalStatus = StatusFailed
		final := trace.LastError()
		fanout.AgentFinal(final)
		sess.Memory.AddTurn(query, final)
		return trace, nil
	}

	final := e.finalizePlan(ctx, sess, fanout, trace, query, lastOutput)
	fanout.AgentFinal(final)
	sess.Memory.AddTurn(query, final)
	return trace, nil
}

// runStep executes the retry envelope for one step. Returns the updated
// last-successful output (empty when the step did not succeed) plus the
// cancellation and failure outcomes.
func (e *Executor) runStep(ctx context.Context, sess *session.Session, fanout *events.Fanout,
	stepTrace *StepTrace, step roles.PlanStep, query, previousOutput string) (string, bool, bool) {

	ctx, span := e.tracer.StartSpan(ctx, observability.SpanPlanStep,
		attribute.Int(observability.AttrStepID, step.StepID))
	defer span.End()

	cur := step
	maxAttempts := e.maxRetries + 1

	for attemptNo := 1; attemptNo <= maxAttempts; attemptNo++ {
		attempt := e.runAttempt(ctx, sess, fanout, cur, query, previousOutput, attemptNo)
		stepTrace.Attempts = append(stepTrace.Attempts, attempt)

		if attempt.Status == StatusCancelled || e.cancelRequested(ctx, sess) {
			stepTrace.Attempts[len(stepTrace.Attempts)-1].Status = StatusCancelled
			stepTrace.FinalStatus = StatusCancelled
			return "", true, false
		}
		if attempt.Status == StatusSuccess {
			stepTrace.FinalStatus = StatusSuccess
			return attempt.Output, false, false
		}

		eval := attempt.Evaluation
		if eval != nil && eval.RecoverableViaRetry && attemptNo < maxAttempts {
			// retry-shaped step: evaluator suggestions replace the hints
			cur = step
			if eval.SuggestedRetryTool != "" {
				cur.ToolHint = eval.SuggestedRetryTool
			}
			if eval.SuggestedRetryInput != "" {
				cur.InputHint = eval.SuggestedRetryInput
			}
			fanout.Monitor(fmt.Sprintf("step %d attempt %d failed, retrying with adjusted hints", step.StepID, attemptNo))
			continue
		}
		break
	}

	stepTrace.FinalStatus = StatusFailed
	return "", false, true
}

// runAttempt performs one controller→executor→evaluator cycle.
func (e *Executor) runAttempt(ctx context.Context, sess *session.Session, fanout *events.Fanout,
	step roles.PlanStep, query, previousOutput string, number int) StepAttempt {

	attempt := StepAttempt{Number: number, Status: StatusFailed}
	taskID := sess.TaskID()

	// Controller phase.
	controller, err := e.client(ports.RoleController, sess, fanout)
	if err != nil {
		attempt.Err = err.Error()
		e.evaluateAttempt(ctx, sess, fanout, step, &attempt)
		return attempt
	}
	decision, err := roles.Decide(ctx, controller, query, step, e.tools.Definitions(taskID), previousOutput)
	if err != nil {
		if errors.Is(err, ports.ErrCancelled) {
			attempt.Status = StatusCancelled
			return attempt
		}
		attempt.Err = err.Error()
		e.evaluateAttempt(ctx, sess, fanout, step, &attempt)
		return attempt
	}
	attempt.Decision = decision

	if decision.Confidence < confidenceWarnThreshold {
		e.logger.Warn("Controller confidence %.2f below threshold for step %d", decision.Confidence, step.StepID)
		fanout.Monitor(fmt.Sprintf("controller confidence %.2f below %.2f for step %d",
			decision.Confidence, confidenceWarnThreshold, step.StepID))
	}

	// Executor phase.
	attempt.Instruction = renderInstruction(step, decision)
	output, execErr := e.executeDecision(ctx, sess, fanout, decision, attempt.Instruction)
	if execErr != nil {
		if errors.Is(execErr, ports.ErrCancelled) {
			attempt.Status = StatusCancelled
			return attempt
		}
		attempt.Err = execErr.Error()
	} else {
		attempt.Output = output
	}

	// Step-evaluation phase.
	e.evaluateAttempt(ctx, sess, fanout, step, &attempt)
	return attempt
}

// executeDecision carries out the controller's choice: a direct tool call
// whose result is reported verbatim, or a reasoning-only executor LLM call.
func (e *Executor) executeDecision(ctx context.Context, sess *session.Session,
	fanout *events.Fanout, decision *roles.ControllerDecision, instruction string) (string, error) {

	if decision.ToolName == nil {
		client, err := e.client(ports.RoleExecutor, sess, fanout)
		if err != nil {
			return "", err
		}
		messages := append(sess.Memory.Messages(), ports.Message{Role: "user", Content: instruction})
		resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: messages})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	return e.invokeTool(ctx, sess.TaskID(), fanout, *decision.ToolName, decision.ToolInput)
}

// invokeTool runs one tool with lifecycle events, schema advisory, metrics,
// and write_file sentinel handling.
func (e *Executor) invokeTool(ctx context.Context, taskID string, fanout *events.Fanout,
	name string, input map[string]any) (string, error) {

	tool, err := e.tools.Find(taskID, name)
	if err != nil {
		return "", err
	}
	if verr := validateDecisionInput(&roles.ControllerDecision{ToolName: &name, ToolInput: input}, tool.Definition()); verr != nil {
		e.logger.Warn("Tool input mismatch for %s: %v", name, verr)
		fanout.Monitor(fmt.Sprintf("tool input for %s does not match its schema: %v", name, verr))
	}

	ctx, span := e.tracer.StartSpan(ctx, observability.SpanToolInvoke,
		attribute.String(observability.AttrToolName, name))
	defer span.End()

	fanout.Emit(ports.Event{Kind: ports.EventToolStart, Tool: name})
	result, err := tool.Execute(ctx, ports.ToolCall{Name: name, Arguments: input, TaskID: taskID})
	switch {
	case err != nil:
		e.countTool(name, "error")
		fanout.Emit(ports.Event{Kind: ports.EventToolError, Tool: name, Text: err.Error()})
		return "", err
	case result.Error != nil:
		e.countTool(name, "error")
		fanout.Emit(ports.Event{Kind: ports.EventToolError, Tool: name, Text: result.Error.Error()})
		return result.Content, result.Error
	}

	e.countTool(name, "ok")
	fanout.Emit(ports.Event{Kind: ports.EventToolEnd, Tool: name})

	if rel, ok := strings.CutPrefix(result.Content, builtin.WriteFileSuccessPrefix); ok {
		fanout.ArtifactGenerated(strings.TrimSpace(rel))
	}
	return result.Content, nil
}

// evaluateAttempt runs the step evaluator and derives the attempt status.
func (e *Executor) evaluateAttempt(ctx context.Context, sess *session.Session,
	fanout *events.Fanout, step roles.PlanStep, attempt *StepAttempt) {

	evaluator, err := e.client(ports.RoleEvaluator, sess, fanout)
	if err != nil {
		attempt.Err = joinErrors(attempt.Err, err.Error())
		return
	}

	eval, err := roles.EvaluateStep(ctx, evaluator, step, attempt.Decision,
		attempt.Output, attempt.Err, e.tools.Summary(sess.TaskID()))
	if err != nil {
		if errors.Is(err, ports.ErrCancelled) {
			attempt.Status = StatusCancelled
			return
		}
		attempt.Err = joinErrors(attempt.Err, "step evaluation failed: "+err.Error())
		return
	}
	attempt.Evaluation = eval

	fanout.Emit(ports.Event{
		Kind:            ports.EventAgentThought,
		ThoughtLabel:    fmt.Sprintf("Step %d verdict", step.StepID),
		ThoughtMarkdown: eval.Assessment,
	})

	if eval.AchievedGoal {
		attempt.Status = StatusSuccess
	}
	fanout.Emit(ports.Event{Kind: ports.EventAgentStepFinish,
		Text: fmt.Sprintf("step %d attempt %d: %s", step.StepID, attempt.Number, string(attempt.Status))})
}

// finalizePlan runs the overall evaluator; its assessment becomes the final
// message, falling back to the last successful step output.
func (e *Executor) finalizePlan(ctx context.Context, sess *session.Session,
	fanout *events.Fanout, trace *PlanTrace, query, lastOutput string) string {

	evaluator, err := e.client(ports.RoleEvaluator, sess, fanout)
	if err != nil {
		e.logger.Warn("Overall evaluation skipped: %v", err)
		return fallbackFinal(lastOutput)
	}
	eval, err := roles.EvaluateOverall(ctx, evaluator, query, trace.Render(), lastOutput)
	if err != nil || strings.TrimSpace(eval.Assessment) == "" {
		e.logger.Warn("Overall evaluation unavailable: %v", err)
		return fallbackFinal(lastOutput)
	}
	return eval.Assessment
}

// RunDirectQA answers a simple request with the executor LLM and a bounded
// tool loop. The answer is streamed and persisted as one agent_message.
func (e *Executor) RunDirectQA(ctx context.Context, sess *session.Session,
	fanout *events.Fanout, query string) (string, error) {

	client, err := e.client(ports.RoleExecutor, sess, fanout)
	if err != nil {
		return "", err
	}
	taskID := sess.TaskID()
	defs := e.tools.Definitions(taskID)
	messages := append(sess.Memory.Messages(), ports.Message{Role: "user", Content: query})

	final := ""
	for round := 0; round < directQAMaxToolRounds; round++ {
		resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: messages, Tools: defs})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		if resp.Content != "" {
			messages = append(messages, ports.Message{Role: "assistant", Content: resp.Content})
		}
		for _, call := range resp.ToolCalls {
			output, terr := e.invokeTool(ctx, taskID, fanout, call.Name, call.Arguments)
			if terr != nil {
				if errors.Is(terr, ports.ErrCancelled) {
					return "", terr
				}
				output = "ERROR: " + terr.Error()
			}
			messages = append(messages, ports.Message{
				Role:    "user",
				Content: fmt.Sprintf("Result of %s:\n%s", call.Name, output),
			})
		}
	}
	if final == "" {
		return "", fmt.Errorf("no final answer after %d tool rounds", directQAMaxToolRounds)
	}

	fanout.AgentFinal(final)
	sess.Memory.AddTurn(query, final)
	return final, nil
}

func (e *Executor) client(role ports.Role, sess *session.Session, fanout *events.Fanout) (ports.LLMClient, error) {
	handle, err := e.llms.Get(role, sess.Overrides())
	if err != nil {
		return nil, err
	}
	return instrument(handle, role, fanout, e.metrics), nil
}

func (e *Executor) finishStep(fanout *events.Fanout, dir, planFile string, stepID int, stepTrace *StepTrace) {
	if e.metrics != nil {
		e.metrics.PlanSteps.WithLabelValues(string(stepTrace.FinalStatus)).Inc()
	}
	if err := PatchPlanStatus(dir, planFile, stepID, stepTrace.FinalStatus); err != nil {
		e.logger.Warn("Plan file patch failed for step %d: %v", stepID, err)
		return
	}
	fanout.ArtifactGenerated(planFile)
}

func (e *Executor) cancelRequested(ctx context.Context, sess *session.Session) bool {
	return sess.Cancelled() || ctx.Err() != nil
}

func (e *Executor) countTool(name, outcome string) {
	if e.metrics != nil {
		e.metrics.ToolInvocations.WithLabelValues(name, outcome).Inc()
	}
}

// renderInstruction produces the executor-facing instruction for one
// attempt. Tool decisions mandate the exact tool and input; no-tool
// decisions are reasoning-only.
func renderInstruction(step roles.PlanStep, decision *roles.ControllerDecision) string {
	if decision.ToolName == nil {
		return fmt.Sprintf(
			"Complete this step using reasoning only, no tools.\nStep: %s\nExpected outcome: %s",
			step.Description, step.ExpectedOutcome)
	}
	inputJSON, err := jsonx.Marshal(decision.ToolInput)
	if err != nil {
		inputJSON = []byte("{}")
	}
	return fmt.Sprintf(
		"Use the tool %q with exactly this input and report the tool result verbatim.\nInput: %s\nStep: %s",
		*decision.ToolName, inputJSON, step.Description)
}

// stepParseError marks the first malformed confirmed-plan entry.
type stepParseError struct {
	stepIndex int
	err       error
}

// parseSteps converts confirmed-plan dicts into PlanSteps. The first
// malformed entry is reported with its index; steps before it stay usable.
func parseSteps(rawSteps []map[string]any) ([]roles.PlanStep, *stepParseError) {
	steps := make([]roles.PlanStep, len(rawSteps))
	var parseErr *stepParseError
	for i, raw := range rawSteps {
		data, err := jsonx.Marshal(raw)
		if err == nil {
			err = jsonx.Unmarshal(data, &steps[i])
		}
		if err == nil && strings.TrimSpace(steps[i].Description) == "" {
			err = fmt.Errorf("step %d has no description", i+1)
		}
		if err != nil && parseErr == nil {
			parseErr = &stepParseError{stepIndex: i, err: err}
		}
		steps[i].StepID = i + 1
		if steps[i].ExpectedOutcome == "" {
			steps[i].ExpectedOutcome = "Step completes as described."
		}
	}
	return steps, parseErr
}

func fallbackFinal(lastOutput string) string {
	if strings.TrimSpace(lastOutput) != "" {
		return lastOutput
	}
	return "The plan completed, but no final summary is available."
}

func joinErrors(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
