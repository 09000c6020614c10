package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"maestro/internal/config"
	"maestro/internal/llm"
	"maestro/internal/logging"
	"maestro/internal/observability"
	"maestro/internal/orchestrator"
	"maestro/internal/ports"
	"maestro/internal/server"
	"maestro/internal/store"
	"maestro/internal/tools"
	"maestro/internal/workspace"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "maestro-server",
		Short:   "Session-oriented agent orchestration server",
		Long:    "maestro-server plans, executes and evaluates multi-step agent pipelines over WebSocket sessions.",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("Main")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}

	llms, err := llm.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("init llm registry: %w", err)
	}

	toolOpts := tools.Options{
		OutputCap:      cfg.ToolOutputCap,
		ShellTimeout:   cfg.ShellTimeout,
		InstallTimeout: cfg.InstallTimeout,
		FetchTimeout:   cfg.FetchTimeout,
		TavilyAPIKey:   cfg.TavilyAPIKey,
		EmbeddingModel: cfg.EmbeddingModel,
	}
	if pc, ok := cfg.Providers["openai"]; ok {
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		if cfg.EmbeddingModel != "" {
			toolOpts.EmbeddingBaseURL = baseURL
			toolOpts.EmbeddingAPIKey = pc.APIKey
		}
	}
	if critique, err := llms.Get(ports.RoleExecutor, nil); err == nil {
		toolOpts.CritiqueLLM = critique
	} else {
		logger.Warn("critique_document disabled, no executor model: %v", err)
	}

	toolReg, err := tools.NewRegistry(workspaces, toolOpts)
	if err != nil {
		return fmt.Errorf("init tool registry: %w", err)
	}

	metrics := observability.NewMetrics()
	tracer, err := observability.NewTracerProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown: %v", err)
		}
	}()

	executor := orchestrator.New(llms, toolReg, workspaces, metrics, tracer, cfg.MaxStepRetries)
	dispatcher := server.NewDispatcher(cfg, st, workspaces, toolReg, llms, executor)
	gateway := server.NewGateway(cfg, dispatcher, st, metrics)

	logger.Info("maestro-server %s starting", version)
	return gateway.Run(ctx)
}
