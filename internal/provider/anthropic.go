package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ghostmesh/gateway/pkg/models"
)

// AnthropicConfig configures the native Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	DefaultModel string
	BaseURL      string
}

// AnthropicAdapter talks to Anthropic's Messages API directly, including
// prompt-cache markers on the final system and assistant blocks.
type AnthropicAdapter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicAdapter builds an adapter bound to cfg.DefaultModel.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicAdapter{client: &client, model: cfg.DefaultModel}
}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Model implements Adapter.
func (a *AnthropicAdapter) Model() string { return a.model }

// Clone implements Adapter.
func (a *AnthropicAdapter) Clone(model string) Adapter {
	return &AnthropicAdapter{client: a.client, model: model}
}

// SendConversation implements Adapter.
func (a *AnthropicAdapter) SendConversation(ctx context.Context, req ConversationRequest) (*ProviderResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, NewProviderError("anthropic", model, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, 4096)),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}
	for _, t := range req.Tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.InputSchema, &schema)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicErr(model, err)
	}

	out := &ProviderResponse{
		StopReason:          string(resp.StopReason),
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Blocks = append(out.Blocks, models.TextBlock{Text: variant.Text})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			out.Blocks = append(out.Blocks, models.ToolUseBlock{
				ID: variant.ID, Name: variant.Name, Input: input,
			})
		}
	}
	return out, nil
}

func toAnthropicMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for i, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Blocks {
			switch blk := b.(type) {
			case models.TextBlock:
				cb := anthropic.NewTextBlock(blk.Text)
				if i == len(msgs)-1 && m.Role == models.RoleGhost {
					cb.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
				}
				blocks = append(blocks, cb)
			case models.ToolUseBlock:
				var input any
				_ = json.Unmarshal(blk.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(blk.ID, input, blk.Name))
			case models.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(blk.ToolUseID, blk.Content, blk.IsError))
			}
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == models.RoleGhost {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

func classifyAnthropicErr(model string, err error) error {
	return NewProviderError("anthropic", model, err)
}

func maxTokensOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
