package context

import (
	"strings"
	"testing"

	"github.com/ghostmesh/gateway/pkg/models"
)

func TestBuildSystemPrompt(t *testing.T) {
	a := NewAssembler()
	prompt := a.BuildSystemPrompt(Identity{
		SystemPrompt:    "You are Orin.",
		IdentityFiles:   map[string]string{"SOUL.md": "curious and terse"},
		Diary:           "2026-07-30: shipped the pairing flow",
		SkillsList:      []string{"web_search"},
		SystemInfo:      "linux/amd64",
		ReferenceTopics: []string{"circuit breaker design"},
	})
	for _, want := range []string{"You are Orin.", "SOUL.md", "curious and terse", "shipped the pairing flow", "web_search", "linux/amd64", "circuit breaker design"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestNeedsCompaction(t *testing.T) {
	a := &Assembler{Windows: map[string]int{"tiny-model": 100}, Margin: 50 * charsPerToken}
	session := &models.Session{}
	small := []models.Message{{Blocks: []models.ContentBlock{models.TextBlock{Text: "hi"}}}}
	if a.NeedsCompaction("tiny-model", session, small) {
		t.Error("small history should not need compaction")
	}

	big := []models.Message{{Blocks: []models.ContentBlock{models.TextBlock{Text: strings.Repeat("x", 1000)}}}}
	if !a.NeedsCompaction("tiny-model", session, big) {
		t.Error("oversized history should need compaction")
	}
}

func TestBuildHistoryWithSummary(t *testing.T) {
	session := &models.Session{ID: "s1", CompactedThrough: 2}
	messages := []models.Message{
		{ID: "m1"}, {ID: "m2"}, {ID: "m3"}, {ID: "m4"},
	}
	out := BuildHistory(session, messages, "earlier context")
	if len(out) != 3 {
		t.Fatalf("expected summary + 2 tail messages, got %d", len(out))
	}
	if out[0].Role != models.RoleSystem || !strings.Contains(out[0].Text(), "earlier context") {
		t.Errorf("first message should be the summary, got %+v", out[0])
	}
	if out[1].ID != "m3" || out[2].ID != "m4" {
		t.Errorf("expected tail m3,m4, got %+v %+v", out[1], out[2])
	}
}
