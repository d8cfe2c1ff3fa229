package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghostmesh/gateway/internal/agent"
	"github.com/ghostmesh/gateway/internal/datetime"
	"github.com/ghostmesh/gateway/internal/tools/files"
)

// DiaryWriteTool appends a timestamped, YAML-fronted entry to the ghost's
// diary, one file per day under <workspace>/diary/.
type DiaryWriteTool struct {
	resolver files.Resolver
}

// NewDiaryWriteTool creates a diary_write tool scoped to the workspace.
func NewDiaryWriteTool(cfg Config) *DiaryWriteTool {
	return &DiaryWriteTool{resolver: resolver(cfg)}
}

func (t *DiaryWriteTool) Name() string { return "diary_write" }

func (t *DiaryWriteTool) Description() string {
	return "Append a timestamped entry to the ghost's diary for the current day."
}

func (t *DiaryWriteTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entry": map[string]any{
				"type":        "string",
				"description": "Diary entry text.",
			},
			"tags": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional labels for this entry.",
			},
		},
		"required": []string{"entry"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type diaryFrontMatter struct {
	Timestamp string   `yaml:"timestamp"`
	Tags      []string `yaml:"tags,omitempty"`
}

func (t *DiaryWriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Entry string   `json:"entry"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Entry) == "" {
		return toolError("entry is required"), nil
	}

	now := time.Now().UTC()
	diaryPath := filepath.Join("diary", now.Format("2006-01-02")+".md")

	resolved, escaped, err := t.resolver.ResolveFrom(".", diaryPath)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if escaped {
		return toolError("diary path resolved outside the workspace"), nil
	}

	front, err := yaml.Marshal(diaryFrontMatter{Timestamp: now.Format(time.RFC3339), Tags: input.Tags})
	if err != nil {
		return toolError(fmt.Sprintf("encode front matter: %v", err)), nil
	}

	heading := datetime.FormatUserTimeWithTimezone(now, "UTC", datetime.Resolved24Hour)

	var entry strings.Builder
	entry.WriteString("---\n")
	entry.Write(front)
	entry.WriteString("---\n\n")
	if heading != "" {
		fmt.Fprintf(&entry, "## %s\n\n", heading)
	}
	entry.WriteString(strings.TrimSpace(input.Entry))
	entry.WriteString("\n\n")

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create diary directory: %v", err)), nil
	}
	file, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return toolError(fmt.Sprintf("open diary file: %v", err)), nil
	}
	defer file.Close()
	if _, err := file.WriteString(entry.String()); err != nil {
		return toolError(fmt.Sprintf("write diary entry: %v", err)), nil
	}

	result := map[string]any{"file": diaryPath, "timestamp": now.Format(time.RFC3339)}
	payload, _ := json.MarshalIndent(result, "", "  ")
	return &agent.ToolResult{Content: string(payload)}, nil
}
