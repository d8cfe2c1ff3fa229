// Package scheduler runs the background heartbeat and reflection jobs:
// spec.md's single process-wide tick loop that visits every ghost's active
// sessions, nudging idle ones and distilling finished ones into a handoff
// note, without ever writing to the session's own message log except for a
// heartbeat's occasional user-visible summary.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ghostmesh/gateway/internal/agent"
	agentctx "github.com/ghostmesh/gateway/internal/agent/context"
	"github.com/ghostmesh/gateway/internal/agents/heartbeat"
	"github.com/ghostmesh/gateway/internal/infra"
	"github.com/ghostmesh/gateway/internal/jobs"
	"github.com/ghostmesh/gateway/internal/observability"
	"github.com/ghostmesh/gateway/internal/sessions"
	"github.com/ghostmesh/gateway/internal/storage"
	"github.com/ghostmesh/gateway/internal/workspace"
	"github.com/ghostmesh/gateway/pkg/models"
)

// Config tunes the scheduler's tick cadence and idle thresholds, mirroring
// spec.md §4.8's heartbeat_timing/reflection config table.
type Config struct {
	TickInterval    time.Duration
	HeartbeatIdle   time.Duration
	ContinueMinutes time.Duration
	ReflectionIdle  time.Duration
	MaxAckChars     int
}

// DefaultConfig returns the scheduler's tuning defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    60 * time.Second,
		HeartbeatIdle:   4 * time.Minute,
		ContinueMinutes: 30 * time.Minute,
		ReflectionIdle:  4 * time.Minute,
		MaxAckChars:     heartbeat.DefaultMaxAckChars,
	}
}

// ChainResolver builds the ordered model chain for a list of config model
// aliases, resolving each alias against the breaker-aware adapters the
// caller constructed at startup.
type ChainResolver func(aliases []string) []agent.ChainLink

// Scheduler drives the heartbeat and reflection tick loop described in
// spec.md §4.8.
type Scheduler struct {
	Ghosts    storage.GhostStore
	Sessions  sessions.Store
	Jobs      jobs.Store
	Locker    sessions.Locker
	Tools     *agent.ToolRegistry
	Reflect   *agent.ToolRegistry
	Dispatcher *agent.Dispatcher
	Chain     ChainResolver
	Monitor   *heartbeat.Monitor
	Config    Config
	Logger    *slog.Logger

	// Tracer and Metrics are optional observability sinks for the
	// heartbeat/reflection job lifecycle, mirroring agent.Loop's
	// WithObservability. Either may be nil.
	Tracer  *observability.Tracer
	Metrics *observability.Metrics

	// defaultModelAliases / heartbeatModelAliases feed Chain when a ghost's
	// own config does not override them.
	DefaultModelAliases   []string
	HeartbeatModelAliases []string

	// concurrency bounds how many sessions tick in parallel per pass.
	concurrency int
}

// NewScheduler builds a Scheduler with defaulted config, logger, and
// concurrency bound.
func NewScheduler(
	ghostStore storage.GhostStore,
	sessionStore sessions.Store,
	jobStore jobs.Store,
	locker sessions.Locker,
	tools, reflectTools *agent.ToolRegistry,
	dispatcher *agent.Dispatcher,
	chain ChainResolver,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Ghosts:      ghostStore,
		Sessions:    sessionStore,
		Jobs:        jobStore,
		Locker:      locker,
		Tools:       tools,
		Reflect:     reflectTools,
		Dispatcher:  dispatcher,
		Chain:       chain,
		Monitor:     heartbeat.NewMonitor(heartbeat.DefaultConfig()),
		Config:      DefaultConfig(),
		Logger:      logger,
		concurrency: 8,
	}
}

// WithObservability attaches the tracer and metrics sinks a scheduler
// tick's jobs report through, returning s for chaining. Either argument may
// be nil to leave that sink disabled.
func (s *Scheduler) WithObservability(tracer *observability.Tracer, metrics *observability.Metrics) *Scheduler {
	s.Tracer = tracer
	s.Metrics = metrics
	return s
}

// Run ticks every Config.TickInterval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass over every ghost's active sessions, heartbeat then
// reflection, sessions in parallel but each session's own pair serialized.
func (s *Scheduler) Tick(ctx context.Context) {
	ghostList, err := s.Ghosts.List(ctx, "")
	if err != nil {
		s.Logger.Error("scheduler: list ghosts", "error", err)
		return
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, ghost := range ghostList {
		sessionList, err := s.Sessions.List(ctx, ghost.ID, sessions.ListOptions{})
		if err != nil {
			s.Logger.Error("scheduler: list sessions", "ghost_id", ghost.ID, "error", err)
			continue
		}
		for _, session := range sessionList {
			ghost, session := ghost, session
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				s.tickSession(ctx, ghost, session)
			}()
		}
	}
	wg.Wait()
}

// tickSession serializes one session's heartbeat and reflection against
// the shared session lock, per spec.md §5's single-writer workspace rule.
func (s *Scheduler) tickSession(ctx context.Context, ghost *models.Ghost, session *models.Session) {
	if s.Locker != nil {
		if err := s.Locker.Lock(ctx, session.ID); err != nil {
			s.Logger.Debug("scheduler: session busy, skipping tick", "session_id", session.ID, "error", err)
			return
		}
		defer s.Locker.Unlock(session.ID)
	}

	ran, err := s.runHeartbeat(ctx, ghost, session)
	if err != nil {
		s.Logger.Warn("scheduler: heartbeat failed", "session_id", session.ID, "error", err)
	} else if ran {
		s.Monitor.Record(ghost.ID, "heartbeat ran")
	}

	if err := s.runReflection(ctx, ghost, session); err != nil {
		s.Logger.Warn("scheduler: reflection failed", "session_id", session.ID, "error", err)
	}
}

// runHeartbeat implements spec.md §4.8's heartbeat algorithm: idle trigger,
// job-log skip guard, dedicated chat loop against heartbeat_model, and a
// user-visible summary only when the reply is more than the continue token.
func (s *Scheduler) runHeartbeat(ctx context.Context, ghost *models.Ghost, session *models.Session) (ran bool, err error) {
	idle := time.Since(session.UpdatedAt)
	if idle < s.Config.HeartbeatIdle {
		return false, nil
	}

	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.TraceJob(ctx, "heartbeat", ghost.ID)
		defer span.End()
	}
	defer func() { s.recordRunAttempt("heartbeat", err) }()

	if last, err := s.Jobs.LastByKind(ctx, ghost.ID, models.JobHeartbeat); err == nil && last != nil {
		if last.Status == models.RunRan && !last.StartedAt.Before(session.UpdatedAt) {
			return false, nil
		}
	}

	root := ghost.WorkspaceDir
	prompt, err := workspace.LoadHeartbeatPrompt(root)
	if err != nil {
		return false, fmt.Errorf("load heartbeat prompt: %w", err)
	}
	if strings.TrimSpace(prompt) == "" {
		if _, err := workspace.EnsureWorkspaceFiles(root, workspace.DefaultBootstrapFiles(), false); err != nil {
			return false, fmt.Errorf("bootstrap workspace: %w", err)
		}
		prompt, _ = workspace.LoadHeartbeatPrompt(root)
	}
	prompt = heartbeat.ResolvePrompt(prompt)

	chain := s.resolveChain(ghost, s.Config.heartbeatAliases(ghost, s.HeartbeatModelAliases, s.DefaultModelAliases))
	if len(chain) == 0 {
		return false, fmt.Errorf("no heartbeat model chain configured")
	}

	log := &models.JobLog{GhostID: ghost.ID, Kind: models.JobHeartbeat, StartedAt: time.Now()}

	result, err := s.runEphemeralTurn(ctx, ghost, chain, s.Tools, agentctx.Identity{SystemPrompt: "You are running a scheduled heartbeat check."}, prompt)
	log.FinishedAt = time.Now()
	if err != nil {
		log.Status = models.RunFailed
		log.Error = err.Error()
		_ = s.Jobs.Create(ctx, log)
		return false, err
	}

	log.Transcript = result.transcript
	stripped := heartbeat.StripToken(result.text, s.Config.MaxAckChars)
	if stripped.ShouldSkip {
		log.Status = models.RunRan
		_ = s.Jobs.Create(ctx, log)
		session.UpdatedAt = time.Now().Add(s.Config.ContinueMinutes - s.Config.HeartbeatIdle)
		if err := s.Sessions.Update(ctx, session); err != nil {
			s.Logger.Warn("scheduler: reschedule heartbeat failed", "session_id", session.ID, "error", err)
		}
		return true, nil
	}

	log.Status = models.RunRan
	if err := s.Jobs.Create(ctx, log); err != nil {
		return true, fmt.Errorf("persist heartbeat job log: %w", err)
	}

	summaryMsg := &models.Message{
		SessionID: session.ID,
		Role:      models.RoleGhost,
		Blocks:    []models.ContentBlock{models.TextBlock{Text: stripped.Text}},
	}
	if err := s.Sessions.AppendMessage(ctx, session.ID, summaryMsg); err != nil {
		return true, fmt.Errorf("post heartbeat summary: %w", err)
	}
	return true, nil
}

// recordRunAttempt reports one heartbeat/reflection attempt's outcome. A
// no-op when no Metrics sink is attached.
func (s *Scheduler) recordRunAttempt(kind string, err error) {
	if s.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
		s.Metrics.RecordError("scheduler", kind+"_failed")
	}
	s.Metrics.RecordRunAttempt(kind, status)
}

// heartbeatAliases picks the heartbeat model chain, falling back to the
// default chain when none is configured for this ghost.
func (c Config) heartbeatAliases(ghost *models.Ghost, heartbeatAliases, defaultAliases []string) []string {
	if len(heartbeatAliases) > 0 {
		return heartbeatAliases
	}
	if len(ghost.ModelChain) > 0 {
		return ghost.ModelChain
	}
	return defaultAliases
}

func (s *Scheduler) resolveChain(ghost *models.Ghost, aliases []string) []agent.ChainLink {
	if s.Chain == nil {
		return nil
	}
	return s.Chain(aliases)
}

// runReflection implements spec.md §4.8's reflection algorithm: trigger on
// new messages since the last successful reflection plus idle time, a
// filtered transcript that strips tool-result bloat, and a handoff note
// carried forward as a template variable for the next run.
func (s *Scheduler) runReflection(ctx context.Context, ghost *models.Ghost, session *models.Session) (err error) {
	idle := time.Since(session.UpdatedAt)
	if idle < s.Config.ReflectionIdle {
		return nil
	}

	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.TraceJob(ctx, "reflection", ghost.ID)
		defer span.End()
	}
	defer func() { s.recordRunAttempt("reflection", err) }()

	lastReflection, err := s.Jobs.LastByKind(ctx, ghost.ID, models.JobReflection)
	if err != nil {
		return fmt.Errorf("load last reflection: %w", err)
	}
	if lastReflection != nil && lastReflection.Status == models.RunRan && !lastReflection.FinishedAt.Before(session.UpdatedAt) {
		return nil
	}

	history, err := s.Sessions.GetHistory(ctx, session.ID, 200)
	if err != nil {
		return fmt.Errorf("load session history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	transcript := filterReflectionTranscript(history)
	handoff := ""
	if lastReflection != nil {
		handoff = lastReflection.HandoffNote
	}

	systemPrompt := "You are reflecting on a finished conversation. Write a concise handoff note " +
		"for your next self: open threads, decisions made, and anything that still needs doing."
	if handoff != "" {
		systemPrompt += "\n\nPrevious handoff note:\n" + handoff
	}

	chain := s.resolveChain(ghost, s.heartbeatOrDefault(ghost))
	if len(chain) == 0 {
		return fmt.Errorf("no reflection model chain configured")
	}

	tools := s.Reflect
	if tools == nil {
		tools = s.Tools
	}

	log := &models.JobLog{GhostID: ghost.ID, Kind: models.JobReflection, StartedAt: time.Now()}
	result, err := s.runEphemeralTurn(ctx, ghost, chain, tools, agentctx.Identity{SystemPrompt: systemPrompt}, transcript)
	log.FinishedAt = time.Now()
	if err != nil {
		log.Status = models.RunFailed
		log.Error = err.Error()
		_ = s.Jobs.Create(ctx, log)
		return err
	}

	log.Status = models.RunRan
	log.Transcript = result.transcript
	log.HandoffNote = strings.TrimSpace(result.text)
	log.TODOList = result.todos
	if err := s.Jobs.Create(ctx, log); err != nil {
		return fmt.Errorf("persist reflection job log: %w", err)
	}

	if err := workspace.ClearWebCache(ghost.WorkspaceDir); err != nil {
		s.Logger.Warn("scheduler: clear web cache failed", "ghost_id", ghost.ID, "error", err)
	}
	return nil
}

func (s *Scheduler) heartbeatOrDefault(ghost *models.Ghost) []string {
	if len(s.DefaultModelAliases) > 0 {
		return s.DefaultModelAliases
	}
	return ghost.ModelChain
}

// filterReflectionTranscript renders history as text, keeping TextBlocks
// verbatim, collapsing ToolUseBlocks to one line, and dropping
// ToolResultBlocks entirely, per spec.md §4.8.
func filterReflectionTranscript(history []*models.Message) string {
	var b strings.Builder
	for _, msg := range history {
		for _, block := range msg.Blocks {
			switch bl := block.(type) {
			case models.TextBlock:
				if bl.Text == "" {
					continue
				}
				fmt.Fprintf(&b, "[%s] %s\n", msg.Role, bl.Text)
			case models.ToolUseBlock:
				fmt.Fprintf(&b, "[%s] called tool %s with %s\n", msg.Role, bl.Name, truncate(string(bl.Input), 200))
			case models.ToolResultBlock:
				// stripped: tool output is not worth re-ingesting here.
			}
		}
	}
	return b.String()
}

// truncate shortens s to at most n runes without splitting a surrogate pair,
// since tool input JSON commonly carries emoji or other astral-plane text.
func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return infra.SliceUTF16Safe(s, 0, n) + "..."
}

// extractReflectionTODOs reads the structured reflection_todo tool calls out
// of an ephemeral turn's history, taking the last call's list (a reflection
// that calls the tool more than once is revising its own list, not
// appending to it).
func extractReflectionTODOs(history []*models.Message) []string {
	var todos []string
	for _, msg := range history {
		for _, block := range msg.Blocks {
			use, ok := block.(models.ToolUseBlock)
			if !ok || use.Name != "reflection_todo" {
				continue
			}
			var input struct {
				Todos []string `json:"todos"`
			}
			if err := json.Unmarshal(use.Input, &input); err != nil {
				continue
			}
			todos = input.Todos
		}
	}
	return todos
}

type ephemeralResult struct {
	text       string
	transcript string
	todos      []string
}

// runEphemeralTurn runs one chat-loop turn against a throwaway in-memory
// session so the transcript never touches the real session's message log,
// per spec.md §4.8's "job logs, not session messages" rule for both jobs.
func (s *Scheduler) runEphemeralTurn(ctx context.Context, ghost *models.Ghost, chain []agent.ChainLink, tools *agent.ToolRegistry, identity agentctx.Identity, prompt string) (*ephemeralResult, error) {
	ephemeralStore := sessions.NewMemoryStore()
	ephemeralApprovals := agent.NewMemoryApprovalStore()
	ephemeralSession, err := ephemeralStore.GetOrCreate(ctx, ghost.ID, "scheduler", ghost.ID+":scheduler:"+time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("create ephemeral session: %w", err)
	}

	loop := agent.NewLoop(ephemeralStore, ephemeralApprovals, tools, s.Dispatcher, s.Logger)
	operatorMsg := &models.Message{
		SessionID: ephemeralSession.ID,
		Role:      models.RoleOperator,
		Blocks:    []models.ContentBlock{models.TextBlock{Text: prompt}},
	}

	turn, err := loop.Run(ctx, ephemeralSession, identity, chain, ghost.ToolPolicy, operatorMsg, false)
	if err != nil {
		return nil, err
	}

	history, err := ephemeralStore.GetHistory(ctx, ephemeralSession.ID, 1000)
	if err != nil {
		return nil, fmt.Errorf("read ephemeral transcript: %w", err)
	}

	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Text())
	}

	text := turn.Text
	if turn.Approval != nil {
		text = heartbeat.Token
	}
	return &ephemeralResult{text: text, transcript: b.String(), todos: extractReflectionTODOs(history)}, nil
}
