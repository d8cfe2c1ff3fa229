package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	agentctx "github.com/ghostmesh/gateway/internal/agent/context"
	"github.com/ghostmesh/gateway/internal/observability"
	"github.com/ghostmesh/gateway/internal/provider"
	"github.com/ghostmesh/gateway/internal/sessions"
	"github.com/ghostmesh/gateway/internal/usage"
	"github.com/ghostmesh/gateway/pkg/models"
)

// LoopPhase names where in one turn's state machine the loop currently is.
// Tracked on LoopError so a caller can tell an init failure from a
// mid-tool-execution failure.
type LoopPhase int

const (
	PhaseInit LoopPhase = iota
	PhaseStream
	PhaseExecuteTools
	PhaseContinue
	PhaseComplete
)

func (p LoopPhase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseStream:
		return "stream"
	case PhaseExecuteTools:
		return "execute_tools"
	case PhaseContinue:
		return "continue"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// LoopError reports which phase and iteration a turn failed in.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("chat loop failed in phase %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

func (e *LoopError) Unwrap() error { return e.Cause }

// LoopConfig tunes one Loop instance.
type LoopConfig struct {
	// MaxToolIterations caps the provider/tool round trips within a single
	// operator turn, spec.md's MAX_TOOL_ITERATIONS.
	MaxToolIterations int
	MaxTokens         int
	// HistoryLimit is how many recent messages the assembler replays on
	// the wire, spec.md §4.6's limit=50.
	HistoryLimit int
}

// DefaultLoopConfig returns the loop's tuning defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxToolIterations: 25, MaxTokens: 4096, HistoryLimit: 50}
}

// TurnResult is the outcome of one Loop.Run call: either final text or a
// structured approval prompt, never both.
type TurnResult struct {
	Text     string
	Approval *models.PendingApproval
}

// Loop drives one operator turn through the model chain dispatcher and the
// tool registry: stream a response, execute any requested tools in order,
// and repeat until the provider stops requesting tools or an approval gate
// halts the turn.
type Loop struct {
	Sessions   sessions.Store
	Approvals  ApprovalStore
	Tools      *ToolRegistry
	Dispatcher *Dispatcher
	Assembler  *agentctx.Assembler
	Config     LoopConfig
	Logger     *slog.Logger
	// Usage records per-round-trip token accounting, spec.md §3's Usage
	// Record. Nil disables recording (e.g. in unit tests).
	Usage *usage.Tracker
	// Events, Metrics, and Tracer are optional observability sinks; each is
	// nil-checked independently so a Loop built without WithObservability
	// behaves exactly as before.
	Events  *observability.EventRecorder
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// NewLoop builds a Loop with defaulted config and logger.
func NewLoop(store sessions.Store, approvals ApprovalStore, tools *ToolRegistry, dispatcher *Dispatcher, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		Sessions:   store,
		Approvals:  approvals,
		Tools:      tools,
		Dispatcher: dispatcher,
		Assembler:  agentctx.NewAssembler(),
		Config:     DefaultLoopConfig(),
		Logger:     logger,
	}
}

// WithUsageTracker attaches a usage tracker, returning l for chaining.
func (l *Loop) WithUsageTracker(tracker *usage.Tracker) *Loop {
	l.Usage = tracker
	return l
}

// WithObservability attaches the event recorder, metrics, and tracer a turn
// reports through, returning l for chaining. Any argument may be nil to
// leave that sink disabled.
func (l *Loop) WithObservability(events *observability.EventRecorder, metrics *observability.Metrics, tracer *observability.Tracer) *Loop {
	l.Events = events
	l.Metrics = metrics
	l.Tracer = tracer
	return l
}

// Run executes spec.md §4.6's algorithm for one operator turn. When
// alreadyPersisted is true (a retry after model-chain fallback, see §4.7),
// the operator message is assumed already durable and is not re-persisted;
// every other step re-reads from storage so tool effects from a prior,
// failed attempt are never re-executed.
func (l *Loop) Run(
	ctx context.Context,
	session *models.Session,
	identity agentctx.Identity,
	chain []ChainLink,
	toolPolicy []string,
	operatorMsg *models.Message,
	alreadyPersisted bool,
) (result *TurnResult, err error) {
	ctx = ContextWithSession(ctx, session)
	ctx = observability.AddSessionID(ctx, session.ID)
	runID := uuid.NewString()
	ctx = observability.AddRunID(ctx, runID)
	runStart := time.Now()

	if l.Tracer != nil {
		var span trace.Span
		ctx, span = l.Tracer.TraceTurn(ctx, session.ID)
		defer span.End()
	}
	if l.Events != nil {
		_ = l.Events.RecordRunStart(ctx, runID, map[string]interface{}{"session_id": session.ID})
		defer func() { _ = l.Events.RecordRunEnd(ctx, time.Since(runStart), err) }()
	}

	if pending, ok := l.Approvals.Get(session.ID); ok {
		resumed, err := l.resumeFromApproval(ctx, session, pending, operatorMsg)
		if err != nil {
			return nil, err
		}
		if resumed != nil {
			return resumed, nil
		}
	} else if !alreadyPersisted {
		if err := l.Sessions.AppendMessage(ctx, session.ID, operatorMsg); err != nil {
			return nil, &LoopError{Phase: PhaseInit, Cause: fmt.Errorf("persist operator message: %w", err)}
		}
	}

	tools := l.Tools.FilterByPolicy(toolPolicy)
	providerTools := AsProviderTools(tools)
	systemPrompt := l.Assembler.BuildSystemPrompt(identity)

	primaryModel := ""
	if len(chain) > 0 {
		primaryModel = chain[0].Model
	}

	for iteration := 0; iteration < l.Config.MaxToolIterations; iteration++ {
		select {
		case <-ctx.Done():
			return nil, &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: ctx.Err()}
		default:
		}

		history, err := l.Sessions.GetHistory(ctx, session.ID, l.Config.HistoryLimit)
		if err != nil {
			return nil, &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: fmt.Errorf("load history: %w", err)}
		}

		messages, err := l.compactIfNeeded(ctx, primaryModel, session, history, chain)
		if err != nil {
			return nil, &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: err}
		}

		req := provider.ConversationRequest{
			System:    systemPrompt,
			Messages:  messages,
			Tools:     providerTools,
			MaxTokens: l.Config.MaxTokens,
		}

		dispatchStart := time.Now()
		resp, alias, dispatchErr := l.Dispatcher.Dispatch(ctx, chain, req)
		l.recordDispatchMetrics(chain, alias, time.Since(dispatchStart), resp, dispatchErr)
		if dispatchErr != nil {
			if dispatchErr == ErrChainExhausted {
				return nil, NewSessionError(AllModelsExhausted, "every model in the chain is cooling down or failed", dispatchErr)
			}
			return nil, &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: dispatchErr}
		}
		l.Logger.Debug("chat loop turn", "session_id", session.ID, "iteration", iteration, "alias", alias)
		l.recordUsage(session, chain, alias, resp)

		toolUses := resp.ToolUses()
		if len(toolUses) == 0 {
			ghostMsg := &models.Message{
				SessionID: session.ID,
				Role:      models.RoleGhost,
				Blocks:    resp.Blocks,
			}
			if err := l.Sessions.AppendMessage(ctx, session.ID, ghostMsg); err != nil {
				return nil, &LoopError{Phase: PhaseComplete, Iteration: iteration, Cause: fmt.Errorf("persist ghost message: %w", err)}
			}
			return &TurnResult{Text: resp.Text()}, nil
		}

		ghostMsg := &models.Message{
			SessionID: session.ID,
			Role:      models.RoleGhost,
			Blocks:    resp.Blocks,
		}
		if err := l.Sessions.AppendMessage(ctx, session.ID, ghostMsg); err != nil {
			return nil, &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Cause: fmt.Errorf("persist ghost message: %w", err)}
		}

		var resultBlocks []models.ContentBlock
		for _, use := range toolUses {
			result := l.executeTool(ctx, use)

			if reasonCode, payload, ok := ParseApprovalSentinel(result.Content); ok {
				pending := NewPendingApproval(session.ID, use.ID, use.Name, reasonCode, payload, use.Input)
				l.Approvals.Set(session.ID, pending)
				return &TurnResult{Approval: pending}, nil
			}

			resultBlocks = append(resultBlocks, models.ToolResultBlock{
				ToolUseID: use.ID,
				Content:   result.Content,
				IsError:   result.IsError,
			})
		}

		toolResultMsg := &models.Message{
			SessionID: session.ID,
			Role:      models.RoleOperator,
			Blocks:    resultBlocks,
		}
		if err := l.Sessions.AppendMessage(ctx, session.ID, toolResultMsg); err != nil {
			return nil, &LoopError{Phase: PhaseExecuteTools, Iteration: iteration, Cause: fmt.Errorf("persist tool results: %w", err)}
		}
	}

	return nil, NewSessionError(MaxIterationsReached, fmt.Sprintf("exceeded %d tool iterations", l.Config.MaxToolIterations), nil)
}

// recordUsage tags one provider round trip's token counts with the
// provider/model that actually served it, by matching alias back against
// chain, and adds it to the attached tracker. A no-op when no tracker is
// attached or the alias can't be matched (should not happen in practice).
func (l *Loop) recordUsage(session *models.Session, chain []ChainLink, alias string, resp *provider.ProviderResponse) {
	if l.Usage == nil || resp == nil {
		return
	}
	var providerName, model string
	for _, link := range chain {
		if link.Alias == alias {
			providerName = link.Adapter.Name()
			model = link.Model
			break
		}
	}
	if providerName == "" {
		return
	}
	l.Usage.Record(usage.Record{
		ID:       uuid.NewString(),
		Provider: providerName,
		Model:    model,
		UserID:   session.OperatorID,
		Usage: usage.Usage{
			InputTokens:      int64(resp.InputTokens),
			OutputTokens:     int64(resp.OutputTokens),
			CacheReadTokens:  int64(resp.CacheReadTokens),
			CacheWriteTokens: int64(resp.CacheCreationTokens),
		},
	})
}

// executeTool runs one tool call, reporting its span, event, and metric
// regardless of which observability sinks (if any) are attached.
func (l *Loop) executeTool(ctx context.Context, use models.ToolUseBlock) *ToolResult {
	if l.Tracer != nil {
		var span trace.Span
		ctx, span = l.Tracer.TraceToolExecution(ctx, use.Name)
		defer span.End()
	}
	if l.Events != nil {
		_ = l.Events.RecordToolStart(ctx, use.Name, use.Input)
	}

	start := time.Now()
	result := l.Tools.Execute(ctx, use.Name, use.Input)
	duration := time.Since(start)

	status := "success"
	var toolErr error
	if result.IsError {
		status = "error"
		toolErr = fmt.Errorf("%s", result.Content)
	}
	if l.Metrics != nil {
		l.Metrics.RecordToolExecution(use.Name, status, duration.Seconds())
	}
	if l.Events != nil {
		_ = l.Events.RecordToolEnd(ctx, use.Name, duration, result.Content, toolErr)
	}
	return result
}

// recordDispatchMetrics reports one provider round trip's latency, token
// counts, and outcome, tagged by the alias Dispatch actually served the
// request from. A no-op when no Metrics sink is attached.
func (l *Loop) recordDispatchMetrics(chain []ChainLink, alias string, duration time.Duration, resp *provider.ProviderResponse, dispatchErr error) {
	if l.Metrics == nil {
		return
	}
	providerName, model := "unknown", "unknown"
	for _, link := range chain {
		if link.Alias == alias {
			providerName = link.Adapter.Name()
			model = link.Model
			break
		}
	}
	status := "success"
	if dispatchErr != nil {
		status = "error"
		l.Metrics.RecordError("agent", "dispatch_failed")
	}
	promptTokens, completionTokens := 0, 0
	if resp != nil {
		promptTokens, completionTokens = resp.InputTokens, resp.OutputTokens
		l.Metrics.RecordLLMCacheTokens(providerName, model, resp.CacheReadTokens, resp.CacheCreationTokens)
	}
	l.Metrics.RecordLLMRequest(providerName, model, status, duration.Seconds(), promptTokens, completionTokens)
}

// resumeFromApproval consumes operatorMsg as a reply to a session's parked
// approval gate instead of a new chat turn. A nil TurnResult means the
// approval was resolved (approved or denied) and Run should fall through
// into the normal dispatch loop to get the model's next response; a
// non-nil TurnResult means the reply didn't resolve anything and the same
// approval prompt is re-surfaced verbatim.
func (l *Loop) resumeFromApproval(ctx context.Context, session *models.Session, pending *models.PendingApproval, operatorMsg *models.Message) (*TurnResult, error) {
	decision := ResolveApprovalReply(operatorMsg.Text())
	if decision == ApprovalUndecided {
		return &TurnResult{Approval: pending}, nil
	}

	var resultBlock models.ToolResultBlock
	switch decision {
	case ApprovalDenied:
		resultBlock = models.ToolResultBlock{
			ToolUseID: pending.ToolUseID,
			Content:   "tool execution denied by operator",
			IsError:   true,
		}
	case ApprovalApproved:
		approvedInput, err := markInputApproved(pending.Input)
		if err != nil {
			return nil, &LoopError{Phase: PhaseExecuteTools, Cause: fmt.Errorf("mark approval input: %w", err)}
		}
		result := l.executeTool(ctx, models.ToolUseBlock{ID: pending.ToolUseID, Name: pending.ToolName, Input: approvedInput})
		resultBlock = models.ToolResultBlock{
			ToolUseID: pending.ToolUseID,
			Content:   result.Content,
			IsError:   result.IsError,
		}
	}

	toolResultMsg := &models.Message{
		SessionID: session.ID,
		Role:      models.RoleOperator,
		Blocks:    []models.ContentBlock{resultBlock},
	}
	if err := l.Sessions.AppendMessage(ctx, session.ID, toolResultMsg); err != nil {
		return nil, &LoopError{Phase: PhaseExecuteTools, Cause: fmt.Errorf("persist approval tool result: %w", err)}
	}
	l.Approvals.Clear(session.ID)
	return nil, nil
}

// ChatWithChain is spec.md §4.7's chat_with_chain: run one operator turn to
// completion against chain. The per-round-trip alias fallback inside
// Dispatch already does the work this component names at the session
// level — every provider call inside Run goes through the same
// breaker-aware Dispatch, so a model that fails mid-turn is skipped on the
// very next tool iteration without restarting the turn. Approval prompts
// and final text are both Ok outcomes; only a SessionError propagates.
func (l *Loop) ChatWithChain(
	ctx context.Context,
	session *models.Session,
	identity agentctx.Identity,
	chain []ChainLink,
	toolPolicy []string,
	operatorMsg *models.Message,
	alreadyPersisted bool,
) (*TurnResult, error) {
	return l.Run(ctx, session, identity, chain, toolPolicy, operatorMsg, alreadyPersisted)
}

// compactIfNeeded folds everything before session.CompactedThrough into a
// synthetic summary message when the uncompacted tail would overrun the
// model's context window, persisting the new cursor so future turns reuse
// the summary instead of re-summarizing.
func (l *Loop) compactIfNeeded(ctx context.Context, model string, session *models.Session, history []*models.Message, chain []ChainLink) ([]models.Message, error) {
	messages := make([]models.Message, len(history))
	for i, m := range history {
		messages[i] = *m
	}

	if len(chain) == 0 || !l.Assembler.NeedsCompaction(model, session, messages) {
		return messages, nil
	}

	toSummarize := messages[session.CompactedThrough:]
	summary, err := agentctx.Summarize(ctx, chain[0].Adapter, chain[0].Model, toSummarize)
	if err != nil {
		l.Logger.Warn("compaction summarize failed, continuing without compaction", "error", err)
		return messages, nil
	}

	session.CompactedThrough = len(messages)
	if err := l.Sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("persist compaction cursor: %w", err)
	}

	return agentctx.BuildHistory(session, messages, summary), nil
}
