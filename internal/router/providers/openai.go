package providers

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// OpenAIConfig configures the OpenAI adapter. Setting BaseURL points the
// same client at any OpenAI-compatible /v1 endpoint, which is how the
// Ollama adapter is built on top of this one.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// OpenAI implements router.Provider against the chat completions API.
type OpenAI struct {
	client       *openai.Client
	name         string
	defaultModel string
	maxTokens    int
}

// NewOpenAI constructs an OpenAI adapter. APIKey is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         "openai",
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name identifies the provider for breaker and audit bookkeeping.
func (o *OpenAI) Name() string { return o.name }

// Send issues one non-streaming CreateChatCompletion call and normalizes
// the reply.
func (o *OpenAI) Send(ctx context.Context, req router.Request) (router.Response, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  convertOpenAIMessages(req.System, req.History),
		MaxTokens: o.maxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	completion, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return router.Response{}, err
	}
	if len(completion.Choices) == 0 {
		return router.Response{}, types.New(types.KindModelResponseMalformed, o.name+": no choices in response")
	}

	choice := completion.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		return router.Response{
			ToolCall: &router.ToolCallDirective{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		}, nil
	}
	return router.Response{Text: choice.Content}, nil
}

// EstimateCost returns a rough per-token cost estimate using GPT-4o
// pricing as the default reference rate.
func (o *OpenAI) EstimateCost(req router.Request, resp router.Response) float64 {
	chars := len(req.System) + len(resp.Text)
	for _, m := range req.History {
		chars += len(m.Text) + len(m.Arguments) + len(m.Result)
	}
	tokens := float64(chars) / 4
	return tokens / 1_000_000 * 2.5
}

func convertOpenAIMessages(system string, history []types.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		case types.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text})
		case types.RoleToolCall:
			out = append(out, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   m.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      m.ToolName,
						Arguments: string(m.Arguments),
					},
				}},
			})
		case types.RoleToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(m.Result),
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

func convertOpenAITools(tools []router.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.InputSchema),
			},
		})
	}
	return out
}
