// Package main provides the CLI entry point for the ghost gateway.
//
// The gateway wires a ghost's provider chain, tool registry, and background
// scheduler together and exposes a local stdin/stdout chat transport for
// development; real messaging transports (Telegram, Discord, Slack) plug in
// as additional internal/transport implementations without touching this
// wiring.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ghostmesh/gateway/internal/agent"
	agentctx "github.com/ghostmesh/gateway/internal/agent/context"
	"github.com/ghostmesh/gateway/internal/breaker"
	"github.com/ghostmesh/gateway/internal/config"
	"github.com/ghostmesh/gateway/internal/identity"
	"github.com/ghostmesh/gateway/internal/jobs"
	"github.com/ghostmesh/gateway/internal/observability"
	"github.com/ghostmesh/gateway/internal/onboard"
	"github.com/ghostmesh/gateway/internal/provider"
	"github.com/ghostmesh/gateway/internal/ratelimit"
	"github.com/ghostmesh/gateway/internal/scheduler"
	"github.com/ghostmesh/gateway/internal/sessions"
	"github.com/ghostmesh/gateway/internal/storage"
	"github.com/ghostmesh/gateway/internal/tools/exec"
	"github.com/ghostmesh/gateway/internal/tools/files"
	"github.com/ghostmesh/gateway/internal/tools/reflect"
	"github.com/ghostmesh/gateway/internal/tools/websearch"
	"github.com/ghostmesh/gateway/internal/usage"
	"github.com/ghostmesh/gateway/internal/workspace"
	"github.com/ghostmesh/gateway/pkg/models"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Ghost gateway - multi-provider AI agent session orchestrator",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's scheduler and a local chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to YAML configuration file")
	return cmd
}

// runServe wires every SPEC_FULL component and runs until SIGINT/SIGTERM,
// per spec.md §6's exit codes: 0 on clean shutdown, non-zero on fatal init
// failure (missing credentials, unreachable storage, unparseable config).
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	chains, err := buildChains(cfg)
	if err != nil {
		return fmt.Errorf("build model chains: %w", err)
	}

	registry := breaker.NewRegistry()
	dispatcher := agent.NewDispatcher(registry, logger)

	sessionStore := sessions.NewMemoryStore()
	tools := buildToolRegistry(cfg, sessionStore)
	reflectTools := buildReflectionToolRegistry(cfg)

	jobStore := jobs.NewMemoryStore()
	locker := sessions.NewLocalLocker(0)
	operators := storage.NewMemoryOperatorStore()
	ghosts := storage.NewMemoryGhostStore()
	interfaces := storage.NewMemoryInterfaceStore()
	identities := identity.NewMemoryStore()
	onboardSvc := onboard.NewService(filepath.Join(cfg.Workspace.Root, ".pairing"), interfaces, operators, identities)

	obsLogger := observability.NewLogger(observability.LogConfig{Format: "text"})
	eventStore := observability.NewMemoryEventStore(1000)
	events := observability.NewEventRecorder(eventStore, obsLogger)
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "gateway",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()
	usageTracker := usage.NewTracker(usage.DefaultTrackerConfig())

	shortWindow := ratelimit.DefaultShortWindow
	shortWindow.Limit = cfg.RateLimit.PerMinute
	longWindow := ratelimit.DefaultLongWindow
	longWindow.Limit = cfg.RateLimit.PerHour
	limiter := ratelimit.NewOperatorLimiter(shortWindow, longWindow)

	operator, ghost, err := bootstrapLocalGhost(ctx, cfg, operators, ghosts)
	if err != nil {
		return fmt.Errorf("bootstrap local ghost: %w", err)
	}

	chainResolver := func(aliases []string) []agent.ChainLink {
		return resolveChain(chains, aliases)
	}

	sched := scheduler.NewScheduler(ghosts, sessionStore, jobStore, locker, tools, reflectTools, dispatcher, chainResolver, logger)
	sched.DefaultModelAliases = cfg.DefaultModel
	sched.HeartbeatModelAliases = cfg.HeartbeatModel
	sched.WithObservability(tracer, metrics)

	schedErrCh := make(chan error, 1)
	go func() {
		schedErrCh <- sched.Run(ctx)
	}()

	loop := agent.NewLoop(sessionStore, agent.NewMemoryApprovalStore(), tools, dispatcher, logger)
	loop.WithUsageTracker(usageTracker).WithObservability(events, metrics, tracer)
	session, err := sessionStore.GetOrCreate(ctx, ghost.ID, operator.ID, models.SessionKey(ghost.ID, models.InterfaceCLI, operator.ID))
	if err != nil {
		return fmt.Errorf("create local session: %w", err)
	}

	wsCtx, err := workspace.LoadWorkspace(workspace.LoaderConfigFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	runCLIChat(ctx, loop, onboardSvc, session, ghost, wsCtx, chainResolver(ghost.ModelChain), limiter, operator.ID)

	stop()
	return <-schedErrCh
}

func buildChains(cfg *config.Config) (map[string]agent.ChainLink, error) {
	links := make(map[string]agent.ChainLink, len(cfg.Models))
	for alias, model := range cfg.Models {
		adapter, err := buildAdapter(model)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", alias, err)
		}
		links[alias] = agent.ChainLink{Alias: alias, Adapter: adapter, Model: model.Model}
	}
	return links, nil
}

func buildAdapter(model config.ModelConfig) (provider.Adapter, error) {
	apiKey := os.Getenv(model.APIKeyEnv)
	switch model.Provider {
	case "anthropic":
		return provider.NewAnthropicAdapter(provider.AnthropicConfig{APIKey: apiKey, DefaultModel: model.Model, BaseURL: model.BaseURL}), nil
	case "openai_compatible":
		return provider.NewOpenAICompatibleAdapter(provider.OpenAICompatibleConfig{Name: "openai_compatible", APIKey: apiKey, BaseURL: model.BaseURL, DefaultModel: model.Model}), nil
	case "openrouter":
		return provider.NewOpenAICompatibleAdapter(provider.OpenAICompatibleConfig{Name: "openrouter", APIKey: apiKey, BaseURL: model.BaseURL, DefaultModel: model.Model, Routing: model.Routing}), nil
	case "gemini":
		return provider.NewOpenAICompatibleAdapter(provider.OpenAICompatibleConfig{Name: "gemini", APIKey: apiKey, BaseURL: model.BaseURL, DefaultModel: model.Model}), nil
	case "ollama":
		return provider.NewOllamaAdapter(provider.OllamaConfig{BaseURL: model.BaseURL, DefaultModel: model.Model}), nil
	case "bedrock":
		return provider.NewBedrockAdapter(context.Background(), provider.BedrockConfig{Region: model.Region, DefaultModel: model.Model})
	default:
		return nil, fmt.Errorf("unknown provider %q", model.Provider)
	}
}

func resolveChain(links map[string]agent.ChainLink, aliases []string) []agent.ChainLink {
	out := make([]agent.ChainLink, 0, len(aliases))
	for _, alias := range aliases {
		if link, ok := links[alias]; ok {
			out = append(out, link)
		}
	}
	return out
}

func buildToolRegistry(cfg *config.Config, sessionStore sessions.Store) *agent.ToolRegistry {
	reg := agent.NewToolRegistry()
	fileCfg := files.Config{Workspace: cfg.Workspace.Root, MaxReadBytes: cfg.Workspace.MaxChars}
	reg.Register(files.NewReadTool(fileCfg))
	reg.Register(files.NewWriteTool(fileCfg))
	reg.Register(files.NewEditTool(fileCfg))
	reg.Register(files.NewApplyPatchTool(fileCfg))
	reg.Register(files.NewChangeDirectoryTool(fileCfg, sessionStore))
	reg.Register(files.NewListDirTool(fileCfg))
	reg.Register(files.NewFindFilesTool(fileCfg))
	reg.Register(files.NewSearchContentTool(fileCfg))

	execManager := exec.NewManager(cfg.Workspace.Root)
	reg.Register(exec.NewExecTool("exec", execManager))
	reg.Register(exec.NewProcessTool(execManager))

	reg.Register(websearch.NewWebSearchTool(&websearch.Config{ExtractContent: true}))
	reg.Register(websearch.NewWebFetchTool(nil))
	return reg
}

// buildReflectionToolRegistry builds the write-side tool surface a
// reflection job runs with instead of the chat surface buildToolRegistry
// returns: the ghost's own diary and identity files, plus the structured
// TODO planner, per spec.md §4.3's reflection tool roster.
func buildReflectionToolRegistry(cfg *config.Config) *agent.ToolRegistry {
	reg := agent.NewToolRegistry()
	reflectCfg := reflect.Config{Workspace: cfg.Workspace.Root}
	reg.Register(reflect.NewDiaryWriteTool(reflectCfg))
	reg.Register(reflect.NewIdentityEditTool(reflectCfg))
	reg.Register(reflect.NewReflectionTodoTool())
	return reg
}

// bootstrapLocalGhost seeds a single operator/ghost pair for the local CLI
// transport, since the real onboarding flow (internal/onboard) only applies
// to messaging-platform Interfaces.
func bootstrapLocalGhost(ctx context.Context, cfg *config.Config, operators storage.OperatorStore, ghosts storage.GhostStore) (*models.Operator, *models.Ghost, error) {
	operator := &models.Operator{ID: uuid.NewString(), Handle: "local"}
	if err := operators.Create(ctx, operator); err != nil {
		return nil, nil, err
	}
	ghost := &models.Ghost{
		ID:           uuid.NewString(),
		OperatorID:   operator.ID,
		Name:         "local",
		WorkspaceDir: cfg.Workspace.Root,
		ModelChain:   cfg.DefaultModel,
		ToolPolicy:   []string{"group:all"},
	}
	if err := ghosts.Create(ctx, ghost); err != nil {
		return nil, nil, err
	}
	if _, err := workspace.EnsureWorkspaceFiles(ghost.WorkspaceDir, workspace.DefaultBootstrapFiles(), false); err != nil {
		return nil, nil, err
	}
	return operator, ghost, nil
}

// runCLIChat is the local development transport: a blocking stdin/stdout
// read-eval loop standing in for a real messaging transport's Inbound
// adapter, applying the same sliding-window rate limit a remote operator
// would be subject to.
func runCLIChat(ctx context.Context, loop *agent.Loop, onboardSvc *onboard.Service, session *models.Session, ghost *models.Ghost, ws *workspace.WorkspaceContext, chain []agent.ChainLink, limiter *ratelimit.OperatorLimiter, operatorID string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "gateway ready; type a message (Ctrl-D to exit)")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/pair ") {
			handlePairCommand(ctx, onboardSvc, operatorID, text)
			continue
		}
		if strings.EqualFold(text, "continue") {
			if pending, ok := limiter.TakePending(operatorID); ok {
				text = pending.Text
			}
		}
		if !limiter.Allow(operatorID) {
			limiter.SetPending(operatorID, text)
			fmt.Fprintln(os.Stderr, "rate limit exceeded; type \"continue\" once a window clears to resend")
			continue
		}

		identity := agentctx.Identity{SystemPrompt: ws.SystemPromptContext()}
		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Role:      models.RoleOperator,
			Blocks:    []models.ContentBlock{models.TextBlock{Text: text}},
		}
		result, err := loop.Run(ctx, session, identity, chain, ghost.ToolPolicy, msg, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if result.Approval != nil {
			fmt.Printf("[approval required: %s]\n", result.Approval.ReasonCode)
			continue
		}
		fmt.Println(result.Text)
	}
}

// handlePairCommand lets the local operator approve a pairing code issued
// to a pending external Interface (e.g. a Telegram user who DMed a ghost
// before any operator existed to approve them), the one inbound path that
// exercises internal/onboard until a real messaging transport is wired.
// Usage: /pair approve <kind> <code>
func handlePairCommand(ctx context.Context, svc *onboard.Service, operatorID, text string) {
	fields := strings.Fields(text)
	if len(fields) != 4 || fields[1] != "approve" {
		fmt.Fprintln(os.Stderr, "usage: /pair approve <kind> <code>")
		return
	}
	kind := models.InterfaceKind(fields[2])
	code := fields[3]
	iface, err := svc.ApproveCode(ctx, operatorID, kind, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pair approve failed: %v\n", err)
		return
	}
	fmt.Printf("[paired %s:%s]\n", iface.Kind, iface.ExternalID)
}
