package provider

import (
	"encoding/json"
	"testing"

	"github.com/ghostmesh/gateway/pkg/models"
)

func TestProviderResponseText(t *testing.T) {
	r := &ProviderResponse{Blocks: []models.ContentBlock{
		models.TextBlock{Text: "hello "},
		models.ToolUseBlock{ID: "t1", Name: "shell", Input: json.RawMessage(`{}`)},
		models.TextBlock{Text: "world"},
	}}
	if got := r.Text(); got != "hello world" {
		t.Errorf("Text() = %q", got)
	}
	uses := r.ToolUses()
	if len(uses) != 1 || uses[0].Name != "shell" {
		t.Errorf("ToolUses() = %+v", uses)
	}
}

func TestOpenAICompatibleAdapterClone(t *testing.T) {
	a := NewOpenAICompatibleAdapter(OpenAICompatibleConfig{
		Name: "openrouter", APIKey: "key", DefaultModel: "anthropic/claude-3.5-sonnet",
	})
	if a.Name() != "openrouter" {
		t.Fatalf("Name() = %q", a.Name())
	}
	cloned := a.Clone("moonshotai/kimi-k2")
	if cloned.Name() != "openrouter" {
		t.Errorf("Clone should preserve provider name, got %q", cloned.Name())
	}
}
