package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ghostmesh/gateway/internal/agent"
)

const (
	// searchContentMaxMatches caps how many file:line hits search_content
	// returns, so a broad pattern can't flood the model's context.
	searchContentMaxMatches = 200
	// searchContentMaxFileBytes skips files larger than this, since
	// anything bigger is almost always a binary or a generated artifact.
	searchContentMaxFileBytes = 5 << 20
)

// SearchContentTool greps file contents under a directory for a regular
// expression.
type SearchContentTool struct {
	resolver Resolver
}

// NewSearchContentTool creates a search_content tool scoped to the
// workspace.
func NewSearchContentTool(cfg Config) *SearchContentTool {
	return &SearchContentTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *SearchContentTool) Name() string { return "search_content" }

// Description returns the tool description.
func (t *SearchContentTool) Description() string {
	return "Search file contents under a directory for a regular expression, returning matching file:line pairs."
}

// Schema returns the JSON schema for the tool parameters.
func (t *SearchContentTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search under, relative to the current directory (default \".\").",
			},
			"glob": map[string]interface{}{
				"type":        "string",
				"description": "Optional glob restricting which file names are searched, e.g. \"*.go\".",
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type contentMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Execute walks the resolved directory, scanning each file's lines against
// the compiled query.
func (t *SearchContentTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Path  string `json:"path"`
		Glob  string `json:"glob"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required"), nil
	}
	re, err := regexp.Compile(input.Query)
	if err != nil {
		return toolError(fmt.Sprintf("invalid regular expression: %v", err)), nil
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

	var matches []contentMatch
	truncated := false
	walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if input.Glob != "" {
			if ok, _ := filepath.Match(input.Glob, d.Name()); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() > searchContentMaxFileBytes {
			return nil
		}

		file, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if !re.MatchString(line) {
				continue
			}
			if len(matches) >= searchContentMaxMatches {
				truncated = true
				return fs.SkipAll
			}
			rel, relErr := filepath.Rel(resolved, p)
			if relErr != nil {
				rel = p
			}
			matches = append(matches, contentMatch{File: rel, Line: lineNo, Text: strings.TrimSpace(line)})
		}
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
