package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
)

// ListDirTool lists the entries of a directory within the workspace.
type ListDirTool struct {
	resolver Resolver
}

// NewListDirTool creates a list_dir tool scoped to the workspace.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *ListDirTool) Name() string { return "list_dir" }

// Description returns the tool description.
func (t *ListDirTool) Description() string {
	return "List files and subdirectories at a path, relative to the current directory."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ListDirTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list, relative to the current directory (default \".\").",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type dirEntryInfo struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Bytes int64  `json:"bytes,omitempty"`
}

// Execute lists the resolved directory's entries.
func (t *ListDirTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	path := strings.TrimSpace(input.Path)
	if path == "" {
		path = "."
	}

	cwd := sessionCWD(ctx, t.resolver.Root)
	resolved, escaped, err := t.resolver.ResolveFrom(cwd, path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if escaped {
		return toolError("path escapes workspace"), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("list directory: %v", err)), nil
	}

	out := make([]dirEntryInfo, 0, len(entries))
	for _, e := range entries {
		item := dirEntryInfo{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			item.Bytes = info.Size()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	result := map[string]interface{}{"path": filepath.Clean(path), "entries": out}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
