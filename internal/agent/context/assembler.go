// Package context assembles the message list sent to a provider on every
// chat-loop turn: system prompt, ghost identity, diary, skills, static
// system info, recent reference topics, and the session's own message
// history, compacting the history when it grows past the model's context
// window.
package context

import (
	"fmt"
	"strings"

	"github.com/ghostmesh/gateway/pkg/models"
)

// Default compaction tuning. No tokenizer is wired for any provider in this
// module, so token counts are estimated from character length the same way
// the teacher's summarizer does; 4 characters per token is the conservative
// heuristic used throughout.
const (
	charsPerToken  = 4
	defaultMargin  = 2000 * charsPerToken
)

// ModelContextWindows maps a model alias's context window size in tokens,
// used to decide when compaction must trigger. Callers may supply their own
// map (e.g. loaded from config) via Assembler.Windows.
var ModelContextWindows = map[string]int{
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,
	"claude-3-5-haiku":  200000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"o3-mini":           200000,
	"gemini-1.5-pro":    2097152,
	"gemini-2.0-flash":  1048576,
	"moonshotai/kimi-k2": 128000,
}

// Identity supplies the static components of a ghost's system prompt.
type Identity struct {
	SystemPrompt   string
	IdentityFiles  map[string]string // filename -> content, e.g. SOUL.md, USER.md
	Diary          string
	SkillsList     []string
	SystemInfo     string
	ReferenceTopics []string
}

// Assembler builds the provider-ready message list for one chat-loop turn.
type Assembler struct {
	Windows map[string]int
	Margin  int // characters reserved as headroom, see defaultMargin
}

// NewAssembler returns an Assembler using the default model context windows
// and margin.
func NewAssembler() *Assembler {
	return &Assembler{Windows: ModelContextWindows, Margin: defaultMargin}
}

// BuildSystemPrompt concatenates identity's components into the single
// system string sent with every request.
func (a *Assembler) BuildSystemPrompt(id Identity) string {
	var b strings.Builder
	b.WriteString(id.SystemPrompt)

	if len(id.IdentityFiles) > 0 {
		b.WriteString("\n\n## Identity\n")
		for name, content := range id.IdentityFiles {
			fmt.Fprintf(&b, "\n### %s\n%s\n", name, content)
		}
	}
	if id.Diary != "" {
		b.WriteString("\n\n## Diary\n")
		b.WriteString(id.Diary)
	}
	if len(id.SkillsList) > 0 {
		b.WriteString("\n\n## Available skills\n")
		for _, s := range id.SkillsList {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if id.SystemInfo != "" {
		b.WriteString("\n\n## System\n")
		b.WriteString(id.SystemInfo)
	}
	if len(id.ReferenceTopics) > 0 {
		b.WriteString("\n\n## Recent reference topics\n")
		for _, t := range id.ReferenceTopics {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String()
}

// EstimateTokens gives the character-count-based token estimate used
// throughout this module in place of a real tokenizer.
func EstimateTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		for _, b := range m.Blocks {
			switch blk := b.(type) {
			case models.TextBlock:
				total += len(blk.Text)
			case models.ToolUseBlock:
				total += len(blk.Input)
			case models.ToolResultBlock:
				total += len(blk.Content)
			}
		}
	}
	return total / charsPerToken
}

// NeedsCompaction reports whether the uncompacted tail of messages (from
// session.CompactedThrough onward) exceeds the model's usable context
// window.
func (a *Assembler) NeedsCompaction(model string, session *models.Session, messages []models.Message) bool {
	window := a.windowFor(model)
	tail := messages[session.CompactedThrough:]
	estimate := EstimateTokens(tail) * charsPerToken
	return estimate > (window*charsPerToken - a.marginOrDefault())
}

func (a *Assembler) windowFor(model string) int {
	if w, ok := a.Windows[model]; ok {
		return w
	}
	return 128000
}

func (a *Assembler) marginOrDefault() int {
	if a.Margin > 0 {
		return a.Margin
	}
	return defaultMargin
}

// BuildHistory returns the messages to send on the wire: a single summary
// text message standing in for everything compacted, followed by every
// message from CompactedThrough onward.
func BuildHistory(session *models.Session, messages []models.Message, summary string) []models.Message {
	if session.CompactedThrough == 0 || summary == "" {
		return messages
	}
	summaryMsg := models.Message{
		ID:        "summary-" + session.ID,
		SessionID: session.ID,
		Role:      models.RoleSystem,
		Blocks:    []models.ContentBlock{models.TextBlock{Text: "Conversation summary so far:\n" + summary}},
	}
	tail := messages[session.CompactedThrough:]
	out := make([]models.Message, 0, len(tail)+1)
	out = append(out, summaryMsg)
	out = append(out, tail...)
	return out
}
