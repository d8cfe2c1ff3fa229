package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ghostmesh/gateway/pkg/models"
)

// BedrockConfig configures the AWS Bedrock adapter.
type BedrockConfig struct {
	Region       string
	DefaultModel string
}

// BedrockAdapter talks to AWS Bedrock's Converse API, used for
// Bedrock-hosted Anthropic and other foundation models as one more link in
// a model chain.
type BedrockAdapter struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockAdapter builds an adapter using ambient AWS credentials
// (environment, shared config, or IAM role).
func NewBedrockAdapter(ctx context.Context, cfg BedrockConfig) (*BedrockAdapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &BedrockAdapter{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  cfg.DefaultModel,
	}, nil
}

// Name implements Adapter.
func (a *BedrockAdapter) Name() string { return "bedrock" }

// Model implements Adapter.
func (a *BedrockAdapter) Model() string { return a.model }

// Clone implements Adapter.
func (a *BedrockAdapter) Clone(model string) Adapter {
	return &BedrockAdapter{client: a.client, model: model}
}

// SendConversation implements Adapter.
func (a *BedrockAdapter) SendConversation(ctx context.Context, req ConversationRequest) (*ProviderResponse, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	msgs := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == models.RoleGhost {
			role = types.ConversationRoleAssistant
		}
		var blocks []types.ContentBlock
		for _, b := range m.Blocks {
			if t, ok := b.(models.TextBlock); ok && t.Text != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: t.Text})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		msgs = append(msgs, types.Message{Role: role, Content: blocks})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: msgs,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	out, err := a.client.Converse(ctx, input)
	if err != nil {
		return nil, NewProviderError("bedrock", model, err)
	}

	resp := &ProviderResponse{}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	if msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Blocks = append(resp.Blocks, models.TextBlock{Text: text.Value})
			}
		}
	}
	resp.StopReason = string(out.StopReason)
	return resp, nil
}
