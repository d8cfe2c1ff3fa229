package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
	"github.com/ghostmesh/gateway/internal/sessions"
)

// ChangeDirectoryTool moves a ghost's working directory for subsequent
// file, find_files, search_content, and exec tool calls within the
// session. Moving outside the workspace root halts on the approval gate
// (agent.ReasonWorkspaceEscape) rather than a hard deny, since an operator
// may legitimately want their ghost to step outside its workspace.
type ChangeDirectoryTool struct {
	resolver Resolver
	sessions sessions.Store
}

// NewChangeDirectoryTool builds a change_directory tool scoped to cfg's
// workspace, persisting cwd changes through store.
func NewChangeDirectoryTool(cfg Config, store sessions.Store) *ChangeDirectoryTool {
	return &ChangeDirectoryTool{resolver: Resolver{Root: cfg.Workspace}, sessions: store}
}

// Name returns the tool name.
func (t *ChangeDirectoryTool) Name() string { return "change_directory" }

// Description returns the tool description.
func (t *ChangeDirectoryTool) Description() string {
	return "Change the current working directory for subsequent file and exec tool calls. " +
		"Moving outside the workspace requires operator approval."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ChangeDirectoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to change into, relative to the current directory or absolute.",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute resolves path against the session's current directory and, once
// clear of the approval gate, persists it as the new cwd.
func (t *ChangeDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Approved bool   `json:"_approved"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	session, ok := agent.SessionFromContext(ctx)
	if !ok {
		return toolError("change_directory requires an active session"), nil
	}

	cwd := sessionCWD(ctx, t.resolver.Root)
	resolved, escaped, err := t.resolver.ResolveFrom(cwd, input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if escaped && !input.Approved {
		return &agent.ToolResult{
			Content: agent.ApprovalRequiredPrefix + agent.ReasonWorkspaceEscape + ":" + resolved,
		}, nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat directory: %v", err)), nil
	}
	if !info.IsDir() {
		return toolError(fmt.Sprintf("%s is not a directory", input.Path)), nil
	}

	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}
	session.Metadata["cwd"] = resolved
	if t.sessions != nil {
		if err := t.sessions.Update(ctx, session); err != nil {
			return toolError(fmt.Sprintf("persist working directory: %v", err)), nil
		}
	}

	result := map[string]interface{}{"cwd": resolved, "left_workspace": escaped}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
