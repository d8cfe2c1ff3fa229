package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ghostmesh/gateway/internal/provider"
	"github.com/ghostmesh/gateway/internal/tools/policy"
)

// Tool parameter limits, preventing a malformed or hostile provider
// response from handing the registry unbounded work.
const (
	MaxToolNameLength  = 256
	MaxToolParamsBytes = 10 << 20
)

// ToolRegistry is the thread-safe set of tools available to a ghost's chat
// loop, reflection job, or heartbeat job.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	resolver *policy.Resolver
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool), resolver: policy.NewResolver()}
}

// Resolver exposes the registry's policy resolver so callers can register
// MCP servers or tool aliases before ghosts start dispatching tool calls.
func (r *ToolRegistry) Resolver() *policy.Resolver {
	return r.resolver
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name against raw JSON parameters, returning a
// well-formed error ToolResult rather than a Go error for anything the
// caller should surface back to the model as tool output.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) *ToolResult {
	if len(name) > MaxToolNameLength {
		return &ToolResult{Content: fmt.Sprintf("tool name exceeds %d characters", MaxToolNameLength), IsError: true}
	}
	if len(params) > MaxToolParamsBytes {
		return &ToolResult{Content: fmt.Sprintf("tool parameters exceed %d bytes", MaxToolParamsBytes), IsError: true}
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{Content: "tool not found: " + name, IsError: true}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}
	}
	return result
}

// FilterByPolicy restricts tools to the allow-list in toolPolicy, expanding
// any "group:" references (e.g. "group:fs") and canonicalizing aliases
// (e.g. "bash" -> "exec") via the registry's policy resolver. An empty
// policy keeps every registered tool available.
func (r *ToolRegistry) FilterByPolicy(toolPolicy []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(toolPolicy) == 0 {
		out := make([]Tool, 0, len(r.tools))
		for _, t := range r.tools {
			out = append(out, t)
		}
		return out
	}
	allowed := make(map[string]bool, len(toolPolicy))
	for _, name := range r.resolver.ExpandGroups(toolPolicy) {
		allowed[name] = true
	}
	out := make([]Tool, 0, len(toolPolicy))
	for name, t := range r.tools {
		if allowed[name] || allowed[r.resolver.CanonicalName(name)] {
			out = append(out, t)
		}
	}
	return out
}

// AsProviderTools converts a slice of registry tools into the wire shape an
// Adapter expects.
func AsProviderTools(tools []Tool) []provider.Tool {
	out := make([]provider.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, provider.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return out
}
