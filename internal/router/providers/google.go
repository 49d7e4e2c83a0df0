package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxTokens    int
}

// Google implements router.Provider against the Gemini API via the
// Google Gen AI Go SDK.
type Google struct {
	client       *genai.Client
	defaultModel string
	maxTokens    int
}

// NewGoogle constructs a Gemini adapter. APIKey is required.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &Google{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name identifies the provider for breaker and audit bookkeeping.
func (g *Google) Name() string { return "google" }

// Send issues one non-streaming GenerateContent call and normalizes the
// reply. Gemini's function-call parts carry no ID; the kernel's tool-call
// IDs aren't round-tripped through the model the way Anthropic's are, so a
// synthetic one is derived from the call's position in the response.
func (g *Google) Send(ctx context.Context, req router.Request) (router.Response, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	contents, err := convertGoogleMessages(req.History)
	if err != nil {
		return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "invalid message history", err)
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = int32(g.maxTokens)
	}
	if len(req.Tools) > 0 {
		tools, tErr := convertGoogleTools(req.Tools)
		if tErr != nil {
			return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "invalid tool schema", tErr)
		}
		config.Tools = tools
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return router.Response{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return router.Response{}, types.New(types.KindModelResponseMalformed, "google: no candidates in response")
	}

	var out router.Response
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			args, mErr := json.Marshal(part.FunctionCall.Args)
			if mErr != nil {
				return router.Response{}, types.Wrap(types.KindModelResponseMalformed, "unparseable tool arguments", mErr)
			}
			out.ToolCall = &router.ToolCallDirective{
				ID:        fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			}
		}
	}
	if out.ToolCall != nil {
		out.Text = ""
	}
	return out, nil
}

// EstimateCost returns a rough per-token cost estimate for the cumulative
// cost budget; Gemini 2.0 Flash pricing is used as the default reference
// rate.
func (g *Google) EstimateCost(req router.Request, resp router.Response) float64 {
	chars := len(req.System) + len(resp.Text)
	for _, m := range req.History {
		chars += len(m.Text) + len(m.Arguments) + len(m.Result)
	}
	tokens := float64(chars) / 4
	return tokens / 1_000_000 * 0.4
}

func convertGoogleMessages(history []types.Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range history {
		content := &genai.Content{}
		switch m.Role {
		case types.RoleSystem:
			continue
		case types.RoleUser, types.RoleToolResult:
			content.Role = genai.RoleUser
		case types.RoleAssistant, types.RoleToolCall:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		switch m.Role {
		case types.RoleUser, types.RoleAssistant:
			if m.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Text})
			}
		case types.RoleToolCall:
			var args map[string]any
			if err := json.Unmarshal(m.Arguments, &args); err != nil {
				return nil, fmt.Errorf("tool call %s: %w", m.ToolCallID, err)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: m.ToolName, Args: args},
			})
		case types.RoleToolResult:
			var response map[string]any
			if err := json.Unmarshal(m.Result, &response); err != nil {
				response = map[string]any{"result": string(m.Result), "error": m.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: m.ToolName, Response: response},
			})
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

func convertGoogleTools(tools []router.ToolDescriptor) ([]*genai.Tool, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.InputSchema, &schemaMap); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  jsonSchemaToGoogleSchema(schemaMap),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// jsonSchemaToGoogleSchema converts a decoded JSON Schema document into
// Gemini's Schema type, which uses its own upper-cased type enum rather
// than accepting a JSON Schema document directly.
func jsonSchemaToGoogleSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = jsonSchemaToGoogleSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = jsonSchemaToGoogleSchema(items)
	}
	return schema
}
