package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/llm"
	"maestro/internal/logging"
	"maestro/internal/orchestrator"
	"maestro/internal/ports"
	"maestro/internal/roles"
	"maestro/internal/session"
	"maestro/internal/shared/jsonx"
	"maestro/internal/store"
	"maestro/internal/tools"
	"maestro/internal/tools/builtin"
	"maestro/internal/workspace"
)

// LLMProvider is the slice of the role registry the dispatcher needs:
// handle resolution plus the published catalog.
type LLMProvider interface {
	Get(role ports.Role, overrides llm.Overrides) (ports.LLMClient, error)
	Catalog() llm.Catalog
}

// Dispatcher demultiplexes inbound client messages to handlers. One instance
// serves every connection; per-client state lives in the session.
type Dispatcher struct {
	cfg        *config.Config
	store      *store.Store
	workspaces *workspace.Manager
	tools      *tools.Registry
	llms       LLMProvider
	executor   *orchestrator.Executor
	logger     logging.Logger
}

func NewDispatcher(cfg *config.Config, st *store.Store, workspaces *workspace.Manager,
	toolReg *tools.Registry, llms LLMProvider, executor *orchestrator.Executor) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		store:      st,
		workspaces: workspaces,
		tools:      toolReg,
		llms:       llms,
		executor:   executor,
		logger:     logging.NewComponentLogger("Dispatcher"),
	}
}

const busyRefusal = "The agent is busy with another request. Cancel it or wait for it to finish."

// Handle processes one inbound envelope. Handlers that start a pipeline
// return immediately; the pipeline runs on its own goroutine under the
// session's single-flight slot.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, fanout *events.Fanout, env *inboundEnvelope) {
	switch env.Type {
	case "context_switch":
		d.handleContextSwitch(ctx, sess, fanout, env.Content)
	case "new_task":
		d.handleNewTask(sess, fanout)
	case "user_message":
		d.handleUserMessage(ctx, sess, fanout, env.Content)
	case "execute_confirmed_plan":
		d.handleExecutePlan(ctx, sess, fanout, env.Content)
	case "cancel_agent":
		d.handleCancel(sess, fanout)
	case "set_llm":
		d.handleSetLLM(sess, fanout, env.Content)
	case "set_session_role_llm":
		d.handleSetRoleLLM(sess, fanout, env.Content)
	case "get_available_models":
		d.sendCatalog(fanout)
	case "get_artifacts_for_task":
		d.sendArtifacts(sess, fanout)
	case "rename_task":
		d.handleRenameTask(ctx, sess, fanout, env.Content)
	case "delete_task":
		d.handleDeleteTask(ctx, sess, fanout, env.Content)
	case "run_command":
		d.handleRunCommand(ctx, sess, fanout, env.Content)
	default:
		fanout.Status(fmt.Sprintf("Unknown message type: %s", env.Type), true)
	}
}

func (d *Dispatcher) handleContextSwitch(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	taskID, ok := decodeStringContent(raw, "task_id", "taskId")
	if !ok || taskID == "" {
		fanout.Status("context_switch requires a task id.", true)
		return
	}

	// cancel in-flight work for the previous task and wait it out
	sess.RequestCancel()
	sess.AwaitIdle()

	if _, err := d.workspaces.Resolve(taskID, true); err != nil {
		fanout.Status(fmt.Sprintf("Cannot switch to task %q: %v", taskID, err), true)
		return
	}
	if err := d.store.EnsureTask(ctx, taskID, taskID, time.Now().UTC()); err != nil {
		d.logger.Warn("EnsureTask %q: %v", taskID, err)
	}

	sess.SetTask(taskID)
	fanout.SetTask(taskID)
	sess.Memory.Clear()

	records, err := d.store.MessagesForTask(ctx, taskID)
	if err != nil {
		d.logger.Warn("History load for %q: %v", taskID, err)
	}
	replayHistory(fanout.Sender(), sess, records)
	d.sendArtifacts(sess, fanout)
}

func (d *Dispatcher) handleNewTask(sess *session.Session, fanout *events.Fanout) {
	sess.RequestCancel()
	sess.AwaitIdle()

	sess.SetTask("")
	fanout.SetTask("")
	sess.Memory.Clear()
	_ = fanout.Sender().Send(events.TypeUpdateArtifacts, []artifactItem{})
	fanout.Status("Started a fresh task context.", false)
}

func (d *Dispatcher) handleUserMessage(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	content, ok := decodeStringContent(raw, "content", "text")
	if !ok || content == "" {
		fanout.Status("Empty user message.", true)
		return
	}

	pipelineCtx, ok := sess.TryBeginPipeline(ctx)
	if !ok {
		fanout.Status(busyRefusal, false)
		return
	}

	if taskID := sess.TaskID(); taskID != "" {
		d.store.AppendMessage(ctx, taskID, sess.ID, ports.KindUserInput, content)
	}

	go func() {
		defer sess.EndPipeline()

		intentClient, err := d.llms.Get(ports.RoleIntent, sess.Overrides())
		if err != nil {
			fanout.Status(fmt.Sprintf("No intent model available: %v", err), true)
			return
		}
		toolSummary := d.tools.Summary(sess.TaskID())

		switch roles.ClassifyIntent(pipelineCtx, intentClient, content, toolSummary) {
		case roles.IntentDirectQA:
			if _, err := d.executor.RunDirectQA(pipelineCtx, sess, fanout, content); err != nil {
				fanout.Status(fmt.Sprintf("Direct answer failed: %v", err), true)
			}
		default:
			d.runPlanner(pipelineCtx, sess, fanout, content, toolSummary)
		}
	}()
}

// runPlanner produces a plan and surfaces it for confirmation; execution
// waits for execute_confirmed_plan.
func (d *Dispatcher) runPlanner(ctx context.Context, sess *session.Session, fanout *events.Fanout, query, toolSummary string) {
	plannerClient, err := d.llms.Get(ports.RolePlanner, sess.Overrides())
	if err != nil {
		fanout.Status(fmt.Sprintf("No planner model available: %v", err), true)
		return
	}
	plan, err := roles.Plan(ctx, plannerClient, query, toolSummary)
	if err != nil {
		fanout.Status(fmt.Sprintf("Planning failed: %v", err), true)
		return
	}
	_ = fanout.Sender().Send(events.TypePlanConfirmation, map[string]any{
		"human_summary":   plan.HumanSummary,
		"structured_plan": plan.Steps,
		"query":           query,
	})
}

type confirmedPlanPayload struct {
	HumanSummary   string           `json:"human_summary"`
	StructuredPlan []map[string]any `json:"structured_plan"`
	Query          string           `json:"query"`
}

func (d *Dispatcher) handleExecutePlan(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	var payload confirmedPlanPayload
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		fanout.Status(fmt.Sprintf("Malformed confirmed plan: %v", err), true)
		return
	}
	if sess.TaskID() == "" {
		fanout.Status("Select a task before executing a plan.", true)
		return
	}

	pipelineCtx, ok := sess.TryBeginPipeline(ctx)
	if !ok {
		fanout.Status(busyRefusal, false)
		return
	}

	if planJSON, err := jsonx.Marshal(payload); err == nil {
		d.store.AppendMessage(ctx, sess.TaskID(), sess.ID, ports.KindConfirmedPlanLog, string(planJSON))
	}

	go func() {
		defer sess.EndPipeline()
		_, err := d.executor.ExecuteConfirmedPlan(pipelineCtx, sess, fanout,
			payload.StructuredPlan, payload.HumanSummary, payload.Query)
		if err != nil {
			fanout.Status(fmt.Sprintf("Plan execution failed: %v", err), true)
		}
	}()
}

func (d *Dispatcher) handleCancel(sess *session.Session, fanout *events.Fanout) {
	if sess.RequestCancel() {
		fanout.Status("Cancellation requested.", false)
		fanout.Monitor("user requested cancellation")
		return
	}
	fanout.Status("Nothing to cancel.", false)
}

func (d *Dispatcher) handleSetLLM(sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	modelID, ok := decodeStringContent(raw, "model_id", "llm_id")
	if !ok {
		fanout.Status("set_llm requires a model id.", true)
		return
	}
	sess.SetOverride(ports.RoleExecutor, modelID)
	if modelID == "" {
		fanout.Status("Executor model reset to default.", false)
		return
	}
	fanout.Status(fmt.Sprintf("Executor model set to %s.", modelID), false)
}

func (d *Dispatcher) handleSetRoleLLM(sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	var payload struct {
		Role    string `json:"role"`
		ModelID string `json:"model_id"`
	}
	if err := jsonx.Unmarshal(raw, &payload); err != nil {
		fanout.Status(fmt.Sprintf("Malformed role override: %v", err), true)
		return
	}
	role := ports.Role(payload.Role)
	valid := false
	for _, known := range ports.Roles {
		if role == known {
			valid = true
			break
		}
	}
	if !valid {
		fanout.Status(fmt.Sprintf("Unknown role: %s", payload.Role), true)
		return
	}
	sess.SetOverride(role, payload.ModelID)
	if payload.ModelID == "" {
		fanout.Status(fmt.Sprintf("Role %s reset to default.", role), false)
		return
	}
	fanout.Status(fmt.Sprintf("Role %s set to %s.", role, payload.ModelID), false)
}

func (d *Dispatcher) sendCatalog(fanout *events.Fanout) {
	_ = fanout.Sender().Send(events.TypeAvailableModels, d.llms.Catalog())
}

type artifactItem struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (d *Dispatcher) sendArtifacts(sess *session.Session, fanout *events.Fanout) {
	taskID := sess.TaskID()
	items := []artifactItem{}
	if taskID != "" {
		artifacts, err := d.workspaces.Artifacts(taskID)
		if err != nil {
			d.logger.Warn("Artifact listing for %q: %v", taskID, err)
		}
		for _, a := range artifacts {
			items = append(items, artifactItem{
				Type:     string(a.Type),
				URL:      fmt.Sprintf("/artifacts/%s/%s", taskID, a.Filename),
				Filename: a.Filename,
			})
		}
	}
	_ = fanout.Sender().Send(events.TypeUpdateArtifacts, items)
}

func (d *Dispatcher) handleRenameTask(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	var payload struct {
		TaskID   string `json:"task_id"`
		NewTitle string `json:"new_title"`
	}
	if err := jsonx.Unmarshal(raw, &payload); err != nil || payload.TaskID == "" || payload.NewTitle == "" {
		fanout.Status("rename_task requires task_id and new_title.", true)
		return
	}
	renamed, err := d.store.RenameTask(ctx, payload.TaskID, payload.NewTitle)
	if err != nil {
		fanout.Status(fmt.Sprintf("Rename failed: %v", err), true)
		return
	}
	if !renamed {
		fanout.Status(fmt.Sprintf("No task %q to rename.", payload.TaskID), true)
		return
	}
	fanout.Status(fmt.Sprintf("Task renamed to %q.", payload.NewTitle), false)
}

func (d *Dispatcher) handleDeleteTask(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	taskID, ok := decodeStringContent(raw, "task_id", "taskId")
	if !ok || taskID == "" {
		fanout.Status("delete_task requires a task id.", true)
		return
	}

	deleted, err := d.store.DeleteTask(ctx, taskID)
	if err != nil {
		fanout.Status(fmt.Sprintf("Delete failed: %v", err), true)
		return
	}
	if err := d.workspaces.Remove(taskID); err != nil {
		d.logger.Warn("Workspace removal for %q: %v", taskID, err)
	}
	if sess.TaskID() == taskID {
		d.handleNewTask(sess, fanout)
	}
	if deleted {
		fanout.Status(fmt.Sprintf("Task %q deleted.", taskID), false)
		return
	}
	fanout.Status(fmt.Sprintf("No task %q to delete.", taskID), false)
}

func (d *Dispatcher) handleRunCommand(ctx context.Context, sess *session.Session, fanout *events.Fanout, raw jsonx.RawMessage) {
	command, ok := decodeStringContent(raw, "command")
	if !ok || command == "" {
		fanout.Status("run_command requires a command.", true)
		return
	}
	taskID := sess.TaskID()
	if taskID == "" {
		fanout.Status("Select a task before running commands.", true)
		return
	}
	dir, err := d.workspaces.Resolve(taskID, true)
	if err != nil {
		fanout.Status(fmt.Sprintf("Workspace unavailable: %v", err), true)
		return
	}

	shell := builtin.NewWorkspaceShell(dir, d.cfg.CommandTimeout)
	result, err := shell.Execute(ctx, ports.ToolCall{
		Name:      "workspace_shell",
		Arguments: map[string]any{"command": command},
		TaskID:    taskID,
	})
	if err != nil {
		fanout.Status(fmt.Sprintf("Command failed: %v", err), true)
		return
	}
	output := result.Content
	if result.Error != nil && output == "" {
		output = result.Error.Error()
	}
	fanout.ToolResultForChat("workspace_shell", output)
	d.sendArtifacts(sess, fanout)
}

// decodeStringContent accepts either a bare JSON string or an object with
// one of the given keys.
func decodeStringContent(raw jsonx.RawMessage, keys ...string) (string, bool) {
	var s string
	if err := jsonx.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var obj map[string]any
	if err := jsonx.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, key := range keys {
		if v, ok := obj[key].(string); ok {
			return v, true
		}
	}
	return "", false
}

// safeArtifactPath resolves an artifact request to a file strictly inside
// the task's workspace directory.
func (d *Dispatcher) safeArtifactPath(taskID, filename string) (string, error) {
	dir, err := d.workspaces.Resolve(taskID, false)
	if err != nil {
		return "", err
	}
	if filepath.Base(filename) != filename {
		return "", workspace.ErrUnsafePath
	}
	path := filepath.Join(dir, filename)
	if !d.workspaces.UnderRoot(path) {
		return "", workspace.ErrUnsafePath
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
