// Package provider defines the uniform, non-streaming contract every LLM
// backend implements, and the concrete adapters for Anthropic's native API
// and the family of OpenAI-compatible endpoints (OpenRouter, local servers,
// Gemini's compatibility layer, Moonshot Kimi).
package provider

import (
	"context"
	"encoding/json"

	"github.com/ghostmesh/gateway/pkg/models"
)

// Adapter is the contract every provider backend must satisfy. Streaming is
// out of scope: Adapter returns one complete ProviderResponse per call, and
// the session chat loop decides whether another round trip is needed.
type Adapter interface {
	// Name returns the adapter's provider identifier, e.g. "anthropic".
	Name() string

	// Model returns the model name this adapter is bound to.
	Model() string

	// SendConversation submits a full conversation (system prompt, message
	// history, available tools) and returns the assistant's turn.
	SendConversation(ctx context.Context, req ConversationRequest) (*ProviderResponse, error)

	// Clone returns a copy of the adapter bound to a different model name,
	// reusing the same transport/credentials — used when a model alias in
	// the chain shares a provider but names a different model.
	Clone(model string) Adapter
}

// Tool describes one callable tool in provider-agnostic form.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ConversationRequest carries everything an Adapter needs to produce the
// next assistant turn.
type ConversationRequest struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []Tool
	MaxTokens int
}

// ProviderResponse is one assistant turn: zero or more content blocks plus
// usage accounting.
type ProviderResponse struct {
	Blocks       []models.ContentBlock
	StopReason   string
	InputTokens  int
	OutputTokens int
	// CacheReadTokens and CacheCreationTokens report prompt-cache accounting
	// for adapters that support it (currently Anthropic). Zero on adapters
	// without cache support.
	CacheReadTokens     int
	CacheCreationTokens int
}

// Text concatenates the text blocks of a ProviderResponse.
func (r *ProviderResponse) Text() string {
	var out string
	for _, b := range r.Blocks {
		if t, ok := b.(models.TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of a ProviderResponse, in order.
func (r *ProviderResponse) ToolUses() []models.ToolUseBlock {
	var out []models.ToolUseBlock
	for _, b := range r.Blocks {
		if t, ok := b.(models.ToolUseBlock); ok {
			out = append(out, t)
		}
	}
	return out
}
