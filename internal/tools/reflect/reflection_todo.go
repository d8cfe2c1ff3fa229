package reflect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghostmesh/gateway/internal/agent"
)

// ReflectionTodoTool lets a reflection turn record its open-thread list as
// structured data instead of free text the scheduler would otherwise have
// to scrape line-by-line out of the handoff note. The scheduler reads the
// tool_use block's input directly out of the ephemeral transcript; Execute
// only validates and acknowledges.
type ReflectionTodoTool struct{}

// NewReflectionTodoTool creates a reflection_todo tool. It has no
// filesystem footprint, so it takes no Config.
func NewReflectionTodoTool() *ReflectionTodoTool {
	return &ReflectionTodoTool{}
}

func (t *ReflectionTodoTool) Name() string { return "reflection_todo" }

func (t *ReflectionTodoTool) Description() string {
	return "Record the list of open items this reflection is carrying forward to the next run."
}

func (t *ReflectionTodoTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"todos": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Open items to carry forward, most important first.",
			},
		},
		"required": []string{"todos"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReflectionTodoTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Todos []string `json:"todos"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	result := map[string]any{"recorded": len(input.Todos)}
	payload, _ := json.MarshalIndent(result, "", "  ")
	return &agent.ToolResult{Content: string(payload)}, nil
}
