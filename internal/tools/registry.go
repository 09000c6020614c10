package tools

import (
	"fmt"
	"time"

	"maestro/internal/logging"
	"maestro/internal/ports"
	"maestro/internal/tools/builtin"
	"maestro/internal/workspace"
)

// Options configures tool construction.
type Options struct {
	OutputCap      int
	ShellTimeout   time.Duration
	InstallTimeout time.Duration
	FetchTimeout   time.Duration

	TavilyAPIKey string

	// CritiqueLLM powers the critique_document tool. Nil disables it.
	CritiqueLLM ports.LLMClient

	// Embedding settings for query_files; empty base URL selects the
	// keyword fallback.
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
}

// Registry yields, per task, the set of tool handles available to an
// executor. Stateless tools are shared; task-scoped tools are constructed
// bound to the task's resolved workspace directory.
type Registry struct {
	workspaces *workspace.Manager
	opts       Options
	stateless  []ports.ToolExecutor
	scoped     []func(dir string) ports.ToolExecutor
	logger     logging.Logger
}

// NewRegistry builds the static tool table. Tool availability is data, not
// code discovery: every tool the server ships is registered here.
func NewRegistry(workspaces *workspace.Manager, opts Options) (*Registry, error) {
	r := &Registry{
		workspaces: workspaces,
		opts:       opts,
		logger:     logging.NewComponentLogger("ToolRegistry"),
	}

	r.stateless = []ports.ToolExecutor{
		builtin.NewWebSearch(opts.TavilyAPIKey),
		builtin.NewWebFetch(opts.FetchTimeout),
		builtin.NewPackageInstall(opts.InstallTimeout),
		builtin.NewPubMedSearch(opts.FetchTimeout),
		builtin.NewPythonREPL(opts.ShellTimeout),
	}

	r.scoped = []func(dir string) ports.ToolExecutor{
		builtin.NewReadFile,
		func(dir string) ports.ToolExecutor { return builtin.NewWriteFile(dir) },
		builtin.NewListFiles,
		func(dir string) ports.ToolExecutor { return builtin.NewWorkspaceShell(dir, opts.ShellTimeout) },
		func(dir string) ports.ToolExecutor {
			return builtin.NewQueryFiles(dir, builtin.EmbeddingConfig{
				BaseURL: opts.EmbeddingBaseURL,
				APIKey:  opts.EmbeddingAPIKey,
				Model:   opts.EmbeddingModel,
			})
		},
	}
	if opts.CritiqueLLM != nil {
		r.scoped = append(r.scoped, func(dir string) ports.ToolExecutor {
			return builtin.NewCritiqueDocument(dir, opts.CritiqueLLM)
		})
	}

	if err := r.checkNameUniqueness(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) checkNameUniqueness() error {
	seen := make(map[string]bool)
	check := func(name string) error {
		if seen[name] {
			return fmt.Errorf("duplicate tool name: %s", name)
		}
		seen[name] = true
		return nil
	}
	for _, tool := range r.stateless {
		if err := check(tool.Definition().Name); err != nil {
			return err
		}
	}
	// Factories only record the directory at construction time, so probing
	// with a placeholder touches no disk.
	for _, factory := range r.scoped {
		if err := check(factory(".").Definition().Name); err != nil {
			return err
		}
	}
	return nil
}

// ForTask returns the tools available for a task. With an empty task id only
// the stateless tools are returned. Every tool is wrapped with the output
// cap so oversized results are truncated before anything downstream sees
// them.
func (r *Registry) ForTask(taskID string) []ports.ToolExecutor {
	out := make([]ports.ToolExecutor, 0, len(r.stateless)+len(r.scoped))
	for _, tool := range r.stateless {
		out = append(out, capOutput(tool, r.opts.OutputCap))
	}

	if taskID == "" {
		return out
	}
	dir, err := r.workspaces.Resolve(taskID, true)
	if err != nil {
		r.logger.Warn("Task-scoped tools unavailable for %q: %v", taskID, err)
		return out
	}
	for _, factory := range r.scoped {
		out = append(out, capOutput(factory(dir), r.opts.OutputCap))
	}
	return out
}

// Definitions lists the schemas of every tool available for a task.
func (r *Registry) Definitions(taskID string) []ports.ToolDefinition {
	tools := r.ForTask(taskID)
	defs := make([]ports.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// Summary renders a short textual tool summary for role prompts.
func (r *Registry) Summary(taskID string) string {
	defs := r.Definitions(taskID)
	summary := ""
	for _, def := range defs {
		summary += fmt.Sprintf("- %s: %s\n", def.Name, firstLine(def.Description))
	}
	return summary
}

// Find locates one tool by name within a task's tool set.
func (r *Registry) Find(taskID, name string) (ports.ToolExecutor, error) {
	for _, tool := range r.ForTask(taskID) {
		if tool.Definition().Name == name {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
