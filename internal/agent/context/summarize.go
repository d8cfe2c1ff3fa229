package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghostmesh/gateway/internal/provider"
	"github.com/ghostmesh/gateway/pkg/models"
)

const summarizePrompt = "Summarize the conversation so far in a few dense paragraphs. " +
	"Preserve concrete facts, decisions, open questions, and any file paths or " +
	"identifiers the ghost will need later. Do not summarize this instruction itself."

// Summarize asks adapter to condense messages into prose, using model for
// the request. It returns an error only on a provider failure; an empty
// message slice yields DefaultSummaryFallback without a provider call.
func Summarize(ctx context.Context, adapter provider.Adapter, model string, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return "No prior history.", nil
	}

	transcript := renderTranscript(messages)
	req := provider.ConversationRequest{
		Model:  model,
		System: summarizePrompt,
		Messages: []models.Message{{
			Role:   models.RoleOperator,
			Blocks: []models.ContentBlock{models.TextBlock{Text: transcript}},
		}},
		MaxTokens: 1024,
	}
	resp, err := adapter.SendConversation(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return resp.Text(), nil
}

func renderTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleOperator:
			b.WriteString("Operator: ")
		case models.RoleGhost:
			b.WriteString("Ghost: ")
		default:
			continue
		}
		b.WriteString(m.Text())
		b.WriteString("\n")
		for _, use := range m.ToolUses() {
			fmt.Fprintf(&b, "  [used tool %s]\n", use.Name)
		}
	}
	return b.String()
}
