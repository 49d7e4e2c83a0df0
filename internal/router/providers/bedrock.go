package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// BedrockConfig configures the Bedrock adapter.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxTokens       int
}

// Bedrock implements router.Provider against AWS Bedrock's Converse API,
// giving ARIA access to Bedrock-hosted foundation models (Claude, Titan,
// Llama) without a separate code path per model family.
type Bedrock struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxTokens    int
}

// NewBedrock constructs a Bedrock adapter. Credentials fall back to the
// default AWS credential chain (env vars, shared config, IAM role) when
// AccessKeyID/SecretAccessKey aren't set explicitly.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &Bedrock{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name identifies the provider for breaker and audit bookkeeping.
func (b *Bedrock) Name() string { return "bedrock" }

// Send issues one non-streaming Converse call and normalizes the reply.
func (b *Bedrock) Send(ctx context.Context, req router.Request) (router.Response, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	messages, err := convertBedrockMessages(req.History)
	if err != nil {
		return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "invalid message history", err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if b.maxTokens > 0 {
		input.InferenceConfig = &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(b.maxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		toolConfig, tErr := convertBedrockTools(req.Tools)
		if tErr != nil {
			return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "invalid tool schema", tErr)
		}
		input.ToolConfig = toolConfig
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return router.Response{}, err
	}
	msg, ok := out.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return router.Response{}, types.New(types.KindModelResponseMalformed, "bedrock: response carried no message")
	}

	var resp router.Response
	for _, block := range msg.Value.Content {
		switch cb := block.(type) {
		case *bedrocktypes.ContentBlockMemberText:
			resp.Text += cb.Value
		case *bedrocktypes.ContentBlockMemberToolUse:
			args, mErr := toolUseInputJSON(cb.Value.Input)
			if mErr != nil {
				return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "unparseable tool arguments", mErr)
			}
			resp.ToolCall = &router.ToolCallDirective{
				ID:        aws.ToString(cb.Value.ToolUseId),
				Name:      aws.ToString(cb.Value.Name),
				Arguments: args,
			}
		}
	}
	if resp.ToolCall != nil {
		resp.Text = ""
	}
	return resp, nil
}

// EstimateCost returns a rough per-token cost estimate for the cumulative
// cost budget; Claude 3 Sonnet-on-Bedrock pricing is used as the default
// reference rate.
func (b *Bedrock) EstimateCost(req router.Request, resp router.Response) float64 {
	chars := len(req.System) + len(resp.Text)
	for _, m := range req.History {
		chars += len(m.Text) + len(m.Arguments) + len(m.Result)
	}
	tokens := float64(chars) / 4
	return tokens / 1_000_000 * 3.0
}

func convertBedrockMessages(history []types.Message) ([]bedrocktypes.Message, error) {
	var out []bedrocktypes.Message
	for _, m := range history {
		var content []bedrocktypes.ContentBlock
		role := bedrocktypes.ConversationRoleUser

		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleUser:
			role = bedrocktypes.ConversationRoleUser
			if m.Text != "" {
				content = append(content, &bedrocktypes.ContentBlockMemberText{Value: m.Text})
			}
		case types.RoleAssistant:
			role = bedrocktypes.ConversationRoleAssistant
			if m.Text != "" {
				content = append(content, &bedrocktypes.ContentBlockMemberText{Value: m.Text})
			}
		case types.RoleToolCall:
			role = bedrocktypes.ConversationRoleAssistant
			var input map[string]interface{}
			if err := json.Unmarshal(m.Arguments, &input); err != nil {
				return nil, fmt.Errorf("tool call %s: %w", m.ToolCallID, err)
			}
			content = append(content, &bedrocktypes.ContentBlockMemberToolUse{
				Value: bedrocktypes.ToolUseBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Name:      aws.String(m.ToolName),
					Input:     document.NewLazyDocument(input),
				},
			})
		case types.RoleToolResult:
			role = bedrocktypes.ConversationRoleUser
			content = append(content, &bedrocktypes.ContentBlockMemberToolResult{
				Value: bedrocktypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content: []bedrocktypes.ToolResultContentBlock{
						&bedrocktypes.ToolResultContentBlockMemberText{Value: string(m.Result)},
					},
					Status: toolResultStatus(m.IsError),
				},
			})
		}

		if len(content) > 0 {
			out = append(out, bedrocktypes.Message{Role: role, Content: content})
		}
	}
	return out, nil
}

func toolResultStatus(isError bool) bedrocktypes.ToolResultStatus {
	if isError {
		return bedrocktypes.ToolResultStatusError
	}
	return bedrocktypes.ToolResultStatusSuccess
}

func convertBedrockTools(tools []router.ToolDescriptor) (*bedrocktypes.ToolConfiguration, error) {
	specs := make([]bedrocktypes.Tool, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.InputSchema, &schemaMap); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		specs = append(specs, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpec{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schemaMap),
				},
			},
		})
	}
	return &bedrocktypes.ToolConfiguration{Tools: specs}, nil
}

func toolUseInputJSON(input document.Interface) (json.RawMessage, error) {
	if input == nil {
		return json.RawMessage(`{}`), nil
	}
	var decoded map[string]interface{}
	if err := input.UnmarshalDocument(&decoded); err != nil {
		return nil, err
	}
	return json.Marshal(decoded)
}
