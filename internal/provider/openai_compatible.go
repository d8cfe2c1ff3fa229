package provider

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ghostmesh/gateway/pkg/models"
)

// OpenAICompatibleConfig configures an adapter for any OpenAI
// chat-completions-shaped endpoint: OpenRouter, a local server, Gemini's
// OpenAI-compatible surface, or Moonshot Kimi. Name distinguishes the
// provider for logging and circuit-breaker aliasing; BaseURL and Routing
// are what actually vary between them.
type OpenAICompatibleConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	DefaultModel string
	// Routing lists OpenRouter provider-preference ordering; ignored by
	// plain OpenAI-compatible endpoints that don't support it.
	Routing []string
}

// OpenAICompatibleAdapter implements Adapter against any server that speaks
// the OpenAI chat-completions wire format.
type OpenAICompatibleAdapter struct {
	client  *openai.Client
	name    string
	model   string
	routing []string
}

// NewOpenAICompatibleAdapter builds an adapter bound to cfg.DefaultModel.
func NewOpenAICompatibleAdapter(cfg OpenAICompatibleConfig) *OpenAICompatibleAdapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompatibleAdapter{
		client:  openai.NewClientWithConfig(clientCfg),
		name:    cfg.Name,
		model:   cfg.DefaultModel,
		routing: cfg.Routing,
	}
}

// Name implements Adapter.
func (a *OpenAICompatibleAdapter) Name() string { return a.name }

// Model implements Adapter.
func (a *OpenAICompatibleAdapter) Model() string { return a.model }

// Clone implements Adapter.
func (a *OpenAICompatibleAdapter) Clone(model string) Adapter {
	return &OpenAICompatibleAdapter{client: a.client, name: a.name, model: model, routing: a.routing}
}

// SendConversation implements Adapter.
func (a *OpenAICompatibleAdapter) SendConversation(ctx context.Context, req ConversationRequest) (*ProviderResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	msgs := toOpenAIMessages(req.System, req.Messages)
	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: maxTokensOr(req.MaxTokens, 4096),
	}
	for _, t := range req.Tools {
		var params map[string]any
		_ = json.Unmarshal(t.InputSchema, &params)
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, NewProviderError(a.name, model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(a.name, model, errNoChoices)
	}
	choice := resp.Choices[0]

	out := &ProviderResponse{
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	// Only OpenAI itself (not every OpenAI-compatible backend) reports
	// cached-prompt accounting, and only when the request hit the cache.
	if resp.Usage.PromptTokensDetails != nil {
		out.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}
	if choice.Message.Content != "" {
		out.Blocks = append(out.Blocks, models.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Blocks = append(out.Blocks, models.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(system string, msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleGhost {
			role = openai.ChatMessageRoleAssistant
		}
		chatMsg := openai.ChatCompletionMessage{Role: role, Content: m.Text()}
		for _, b := range m.Blocks {
			switch blk := b.(type) {
			case models.ToolUseBlock:
				chatMsg.ToolCalls = append(chatMsg.ToolCalls, openai.ToolCall{
					ID:   blk.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      blk.Name,
						Arguments: string(blk.Input),
					},
				})
			case models.ToolResultBlock:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    blk.Content,
					ToolCallID: blk.ToolUseID,
				})
			}
		}
		if chatMsg.Content != "" || len(chatMsg.ToolCalls) > 0 {
			out = append(out, chatMsg)
		}
	}
	return out
}

var errNoChoices = providerNoChoicesErr{}

type providerNoChoicesErr struct{}

func (providerNoChoicesErr) Error() string { return "provider returned no choices" }
