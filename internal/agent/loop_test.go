package agent

import (
	"context"
	"encoding/json"
	"testing"

	agentctx "github.com/ghostmesh/gateway/internal/agent/context"
	"github.com/ghostmesh/gateway/internal/breaker"
	"github.com/ghostmesh/gateway/internal/provider"
	"github.com/ghostmesh/gateway/internal/sessions"
	"github.com/ghostmesh/gateway/pkg/models"
)

// stubAdapter returns a fixed sequence of responses, one per call, so tests
// can script a multi-iteration tool loop deterministically.
type stubAdapter struct {
	responses []*provider.ProviderResponse
	calls     int
}

func (s *stubAdapter) Name() string  { return "stub" }
func (s *stubAdapter) Model() string { return "stub-model" }
func (s *stubAdapter) Clone(model string) provider.Adapter { return s }
func (s *stubAdapter) SendConversation(ctx context.Context, req provider.ConversationRequest) (*provider.ProviderResponse, error) {
	if s.calls >= len(s.responses) {
		return &provider.ProviderResponse{Blocks: []models.ContentBlock{models.TextBlock{Text: "done"}}}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

type echoTool struct{}

func (echoTool) Name() string                  { return "echo" }
func (echoTool) Description() string           { return "echoes input" }
func (echoTool) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: string(params)}, nil
}

type gatedTool struct{}

func (gatedTool) Name() string            { return "change_directory" }
func (gatedTool) Description() string     { return "changes directory" }
func (gatedTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (gatedTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: ApprovalRequiredPrefix + "outside-workspace:/tmp", IsError: true}, nil
}

func newTestLoop(t *testing.T, adapter provider.Adapter) (*Loop, *models.Session) {
	t.Helper()
	store := sessions.NewMemoryStore()
	ctx := context.Background()
	session, err := store.GetOrCreate(ctx, "ghost-1", "cli-1", "ghost-1:cli:op-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	registry := NewToolRegistry()
	registry.Register(echoTool{})
	registry.Register(gatedTool{})

	dispatcher := NewDispatcher(breaker.NewRegistry(), nil)
	loop := NewLoop(store, NewMemoryApprovalStore(), registry, dispatcher, nil)
	return loop, session
}

func TestLoopCompletesWithoutTools(t *testing.T) {
	adapter := &stubAdapter{responses: []*provider.ProviderResponse{
		{Blocks: []models.ContentBlock{models.TextBlock{Text: "hello there"}}},
	}}
	loop, session := newTestLoop(t, adapter)
	chain := []ChainLink{{Alias: "primary", Adapter: adapter, Model: "stub-model"}}

	msg := &models.Message{SessionID: session.ID, Role: models.RoleOperator, Blocks: []models.ContentBlock{models.TextBlock{Text: "hi"}}}
	result, err := loop.Run(context.Background(), session, agentctx.Identity{}, chain, nil, msg, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "hello there" {
		t.Fatalf("Text = %q, want %q", result.Text, "hello there")
	}

	history, err := loop.Sessions.GetHistory(context.Background(), session.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (operator + ghost)", len(history))
	}
}

func TestLoopExecutesToolThenCompletes(t *testing.T) {
	toolInput, _ := json.Marshal(map[string]string{"path": "notes.txt"})
	adapter := &stubAdapter{responses: []*provider.ProviderResponse{
		{Blocks: []models.ContentBlock{
			models.ToolUseBlock{ID: "call-1", Name: "echo", Input: toolInput},
		}},
		{Blocks: []models.ContentBlock{models.TextBlock{Text: "finished"}}},
	}}
	loop, session := newTestLoop(t, adapter)
	chain := []ChainLink{{Alias: "primary", Adapter: adapter, Model: "stub-model"}}

	msg := &models.Message{SessionID: session.ID, Role: models.RoleOperator, Blocks: []models.ContentBlock{models.TextBlock{Text: "read notes.txt"}}}
	result, err := loop.Run(context.Background(), session, agentctx.Identity{}, chain, nil, msg, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "finished" {
		t.Fatalf("Text = %q, want %q", result.Text, "finished")
	}

	history, err := loop.Sessions.GetHistory(context.Background(), session.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4 (operator, ghost+tooluse, tool-result, ghost)", len(history))
	}
}

func TestLoopHaltsOnApprovalGate(t *testing.T) {
	adapter := &stubAdapter{responses: []*provider.ProviderResponse{
		{Blocks: []models.ContentBlock{
			models.ToolUseBlock{ID: "call-1", Name: "change_directory", Input: json.RawMessage(`{}`)},
		}},
	}}
	loop, session := newTestLoop(t, adapter)
	chain := []ChainLink{{Alias: "primary", Adapter: adapter, Model: "stub-model"}}

	msg := &models.Message{SessionID: session.ID, Role: models.RoleOperator, Blocks: []models.ContentBlock{models.TextBlock{Text: "cd /tmp"}}}
	result, err := loop.Run(context.Background(), session, agentctx.Identity{}, chain, nil, msg, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Approval == nil {
		t.Fatal("expected a pending approval")
	}
	if result.Approval.ToolName != "change_directory" {
		t.Fatalf("ToolName = %q, want change_directory", result.Approval.ToolName)
	}

	pending, ok := loop.Approvals.Get(session.ID)
	if !ok || pending.ReasonCode != "outside-workspace" {
		t.Fatalf("expected stored pending approval with reason outside-workspace, got %+v", pending)
	}
}

func TestLoopSkipsPersistWhenAlreadyPersisted(t *testing.T) {
	adapter := &stubAdapter{responses: []*provider.ProviderResponse{
		{Blocks: []models.ContentBlock{models.TextBlock{Text: "ok"}}},
	}}
	loop, session := newTestLoop(t, adapter)
	chain := []ChainLink{{Alias: "primary", Adapter: adapter, Model: "stub-model"}}

	msg := &models.Message{SessionID: session.ID, Role: models.RoleOperator, Blocks: []models.ContentBlock{models.TextBlock{Text: "hi"}}}
	if err := loop.Sessions.AppendMessage(context.Background(), session.ID, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if _, err := loop.Run(context.Background(), session, agentctx.Identity{}, chain, nil, msg, true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	history, err := loop.Sessions.GetHistory(context.Background(), session.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2 (one operator message, not duplicated)", len(history))
	}
}
