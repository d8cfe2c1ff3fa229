package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
)

// findFilesMaxResults caps how many matches find_files returns, so a
// pattern matching most of a large tree doesn't flood the model's context.
const findFilesMaxResults = 500

// FindFilesTool finds files under the current directory whose base name
// matches a glob pattern.
type FindFilesTool struct {
	resolver Resolver
}

// NewFindFilesTool creates a find_files tool scoped to the workspace.
func NewFindFilesTool(cfg Config) *FindFilesTool {
	return &FindFilesTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *FindFilesTool) Name() string { return "find_files" }

// Description returns the tool description.
func (t *FindFilesTool) Description() string {
	return "Find files under a directory whose name matches a glob pattern, e.g. \"*.go\"."
}

// Schema returns the JSON schema for the tool parameters.
func (t *FindFilesTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern matched against each file's base name, e.g. \"*.go\".",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search under, relative to the current directory (default \".\").",
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute walks the resolved directory, collecting name matches.
func (t *FindFilesTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
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

	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ok, matchErr := filepath.Match(input.Pattern, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if !ok {
			return nil
		}
		if len(matches) >= findFilesMaxResults {
			truncated = true
			return fs.SkipAll
		}
		rel, relErr := filepath.Rel(resolved, p)
		if relErr != nil {
			rel = p
		}
		matches = append(matches, rel)
		return nil
	})
	if walkErr != nil {
		return toolError(fmt.Sprintf("walk directory: %v", walkErr)), nil
	}

	result := map[string]interface{}{"matches": matches, "truncated": truncated}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
