// Package providers implements the router's model backends: Anthropic,
// OpenAI, Ollama (via OpenAI's compatible /v1 surface), Google Gemini, and
// AWS Bedrock. Each adapter
// performs exactly one blocking request per Send call; retry, breaker, and
// fallback policy live in the router, not here.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Anthropic implements router.Provider against the Claude Messages API.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropic constructs an Anthropic adapter. APIKey is required.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name identifies the provider for breaker and audit bookkeeping.
func (a *Anthropic) Name() string { return "anthropic" }

// Send issues one non-streaming Messages.New call and normalizes the reply.
func (a *Anthropic) Send(ctx context.Context, req router.Request) (router.Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertMessages(req.History),
		MaxTokens: int64(a.maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "invalid tool schema", err)
		}
		params.Tools = tools
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return router.Response{}, err
	}

	var resp router.Response
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args, marshalErr := json.Marshal(tu.Input)
			if marshalErr != nil {
				return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "unparseable tool arguments", marshalErr)
			}
			resp.ToolCall = &router.ToolCallDirective{ID: tu.ID, Name: tu.Name, Arguments: args}
		}
	}
	if resp.ToolCall != nil {
		resp.Text = ""
	}
	return resp, nil
}

// EstimateCost returns a rough per-token cost estimate for the cumulative
// cost budget; Claude Sonnet pricing is used as the default reference rate.
func (a *Anthropic) EstimateCost(req router.Request, resp router.Response) float64 {
	chars := len(req.System) + len(resp.Text)
	for _, m := range req.History {
		chars += len(m.Text) + len(m.Arguments) + len(m.Result)
	}
	tokens := float64(chars) / 4
	return tokens / 1_000_000 * 3.0
}

func convertMessages(history []types.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range history {
		var content []anthropic.ContentBlockParamUnion
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleUser:
			content = append(content, anthropic.NewTextBlock(m.Text))
			out = append(out, anthropic.NewUserMessage(content...))
		case types.RoleAssistant:
			content = append(content, anthropic.NewTextBlock(m.Text))
			out = append(out, anthropic.NewAssistantMessage(content...))
		case types.RoleToolCall:
			var input map[string]interface{}
			_ = json.Unmarshal(m.Arguments, &input)
			content = append(content, anthropic.NewToolUseBlock(m.ToolCallID, input, m.ToolName))
			out = append(out, anthropic.NewAssistantMessage(content...))
		case types.RoleToolResult:
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, string(m.Result), m.IsError))
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out
}

func convertTools(tools []router.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tp.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s", t.Name)
		}
		tp.OfTool.Description = anthropic.String(t.Description)
		out = append(out, tp)
	}
	return out, nil
}
