package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/pkg/types"
)

func TestNewGoogleRequiresAPIKey(t *testing.T) {
	_, err := NewGoogle(context.Background(), GoogleConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewGoogleAppliesDefaults(t *testing.T) {
	g, err := NewGoogle(context.Background(), GoogleConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", g.defaultModel)
	assert.Equal(t, 4096, g.maxTokens)
	assert.Equal(t, "google", g.Name())
}

func TestConvertGoogleMessagesSkipsSystemAndMapsRoles(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleSystem, Text: "ignored"},
		{Role: types.RoleUser, Text: "hello"},
		{Role: types.RoleAssistant, Text: "hi there"},
	}
	contents, err := convertGoogleMessages(history)
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", string(contents[0].Role))
	assert.Equal(t, "model", string(contents[1].Role))
}

func TestConvertGoogleMessagesConvertsToolCallAndResult(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleToolCall, ToolName: "search", ToolCallID: "call_1", Arguments: json.RawMessage(`{"q":"go"}`)},
		{Role: types.RoleToolResult, ToolName: "search", ToolCallID: "call_1", Result: json.RawMessage(`{"hits":3}`)},
	}
	contents, err := convertGoogleMessages(history)
	require.NoError(t, err)
	require.Len(t, contents, 2)
	require.NotNil(t, contents[0].Parts[0].FunctionCall)
	assert.Equal(t, "search", contents[0].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[1].Parts[0].FunctionResponse)
	assert.Equal(t, "search", contents[1].Parts[0].FunctionResponse.Name)
}

func TestConvertGoogleToolsMapsJSONSchemaTypes(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)
	tools, err := convertGoogleTools([]router.ToolDescriptor{
		{Name: "search", Description: "searches", InputSchema: schema},
	})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "search", decl.Name)
	assert.Equal(t, "OBJECT", string(decl.Parameters.Type))
	assert.Contains(t, decl.Parameters.Required, "q")
}
