package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
	"github.com/ghostmesh/gateway/internal/tools/files"
)

// identityEditableFiles is the allowlist of workspace files a reflection
// job may rewrite. HEARTBEAT.md is deliberately excluded: it is the
// operator-facing heartbeat instruction file, not part of the ghost's own
// identity.
var identityEditableFiles = map[string]bool{
	"SOUL.md": true,
	"USER.md": true,
	"BOOT.md": true,
}

// IdentityEditTool overwrites one of the ghost's identity files, the
// write-side counterpart to the read-only identity context the assembler
// loads into every turn's system prompt.
type IdentityEditTool struct {
	resolver files.Resolver
}

// NewIdentityEditTool creates an identity_edit tool scoped to the workspace.
func NewIdentityEditTool(cfg Config) *IdentityEditTool {
	return &IdentityEditTool{resolver: resolver(cfg)}
}

func (t *IdentityEditTool) Name() string { return "identity_edit" }

func (t *IdentityEditTool) Description() string {
	return "Rewrite one of the ghost's identity files (SOUL.md, USER.md, BOOT.md)."
}

func (t *IdentityEditTool) Schema() json.RawMessage {
	names := make([]string, 0, len(identityEditableFiles))
	for name := range identityEditableFiles {
		names = append(names, name)
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file": map[string]any{
				"type":        "string",
				"enum":        names,
				"description": "Which identity file to rewrite.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "New file contents.",
			},
		},
		"required": []string{"file", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *IdentityEditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		File    string `json:"file"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	name := strings.TrimSpace(input.File)
	if !identityEditableFiles[name] {
		return toolError(fmt.Sprintf("%s is not an editable identity file", name)), nil
	}

	resolved, err := t.resolver.Resolve(name)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write %s: %v", name, err)), nil
	}

	result := map[string]any{"file": name, "bytes_written": len(input.Content)}
	payload, _ := json.MarshalIndent(result, "", "  ")
	return &agent.ToolResult{Content: string(payload)}, nil
}
