package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/piwi3910/neuroroute/llm"
	"github.com/piwi3910/neuroroute/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClaudeProvider_Name(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	assert.Equal(t, "anthropic", provider.Name())
}

func TestClaudeProvider_SupportsNativeFunctionCalling(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	assert.True(t, provider.SupportsNativeFunctionCalling())
}

func TestClaudeProvider_Defaults(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	assert.Equal(t, "https://api.anthropic.com", provider.cfg.BaseURL)
	assert.Equal(t, defaultAnthropicVersion, provider.cfg.AnthropicVersion)
}

func TestClaudeProvider_BuildHeadersAPIKeyAuth(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	req, err := newTestRequest()
	require.NoError(t, err)

	provider.buildHeaders(req, "sk-test-key")
	assert.Equal(t, "sk-test-key", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, defaultAnthropicVersion, req.Header.Get("anthropic-version"))
}

func TestClaudeProvider_BuildHeadersBearerAuth(t *testing.T) {
	cfg := providers.ClaudeConfig{AuthType: "bearer"}
	provider := NewClaudeProvider(cfg, zap.NewNop())
	req, err := newTestRequest()
	require.NoError(t, err)

	provider.buildHeaders(req, "sk-test-key")
	assert.Equal(t, "Bearer sk-test-key", req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("x-api-key"))
}

func TestConvertToClaudeMessages_ExtractsSystemPrompt(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful."},
		{Role: llm.RoleUser, Content: "Hi"},
	}
	system, out := convertToClaudeMessages(msgs)
	assert.Equal(t, "You are helpful.", system)
	require.Len(t, out, 1)
	assert.Equal(t, "user", out[0].Role)
}

func TestConvertToClaudeMessages_ToolResultBecomesUserBlock(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleTool, ToolCallID: "call_1", Content: `{"ok":true}`},
	}
	_, out := convertToClaudeMessages(msgs)
	require.Len(t, out, 1)
	assert.Equal(t, "user", out[0].Role)
	require.Len(t, out[0].Content, 1)
	assert.Equal(t, "tool_result", out[0].Content[0].Type)
	assert.Equal(t, "call_1", out[0].Content[0].ToolUseID)
}

func TestConvertToClaudeMessages_ToolCallBecomesToolUseBlock(t *testing.T) {
	msgs := []llm.Message{
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"sf"}`)},
			},
		},
	}
	_, out := convertToClaudeMessages(msgs)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)
	assert.Equal(t, "tool_use", out[0].Content[0].Type)
	assert.Equal(t, "get_weather", out[0].Content[0].Name)
}

func TestConvertToClaudeTools(t *testing.T) {
	tools := []llm.ToolSchema{
		{Name: "search", Description: "search the web", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	out := convertToClaudeTools(tools)
	require.Len(t, out, 1)
	assert.Equal(t, "search", out[0].Name)
}

func TestClaudeProvider_BuildRequestEnablesExtendedThinking(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	req := &llm.ChatRequest{
		ReasoningMode: "extended",
		Messages:      []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
	body, _ := provider.buildRequest(req, false)
	require.NotNil(t, body.Thinking)
	assert.Equal(t, "enabled", body.Thinking.Type)
	assert.Equal(t, extendedThinkingBudgetTokens, body.Thinking.BudgetTokens)
}

func TestClaudeProvider_BuildRequestDefaultNoThinking(t *testing.T) {
	provider := NewClaudeProvider(providers.ClaudeConfig{}, zap.NewNop())
	req := &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}
	body, _ := provider.buildRequest(req, false)
	assert.Nil(t, body.Thinking)
}

func TestToClaudeChatResponse_ExtractsTextAndToolCalls(t *testing.T) {
	resp := claudeResponse{
		ID:    "msg_1",
		Model: "claude-sonnet-4-6",
		Content: []claudeContentBlock{
			{Type: "text", Text: "hello "},
			{Type: "text", Text: "world"},
			{Type: "tool_use", ID: "call_1", Name: "search", Input: json.RawMessage(`{}`)},
		},
		StopReason: "tool_use",
		Usage:      claudeUsage{InputTokens: 10, OutputTokens: 5},
	}
	chatResp := toClaudeChatResponse(resp, "anthropic", "claude-sonnet-4-6")
	require.Len(t, chatResp.Choices, 1)
	assert.Equal(t, "hello world", chatResp.Choices[0].Message.Content)
	require.Len(t, chatResp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, 15, chatResp.Usage.TotalTokens)
}

func TestToClaudeChatResponse_CollectsThoughtSignatures(t *testing.T) {
	resp := claudeResponse{
		Content: []claudeContentBlock{
			{Type: "thinking", Thinking: "reasoning...", Signature: "sig-abc"},
			{Type: "text", Text: "answer"},
		},
	}
	chatResp := toClaudeChatResponse(resp, "anthropic", "claude-sonnet-4-6")
	assert.Equal(t, []string{"sig-abc"}, chatResp.ThoughtSignatures)
}

func newTestRequest() (*http.Request, error) {
	return http.NewRequest(http.MethodGet, "https://api.anthropic.com/v1/messages", nil)
}

func TestClaudeProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	provider := NewClaudeProvider(providers.ClaudeConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  apiKey,
			Model:   "claude-sonnet-4-6",
			Timeout: 30 * time.Second,
		},
	}, zap.NewNop())

	ctx := context.Background()

	t.Run("HealthCheck", func(t *testing.T) {
		status, err := provider.HealthCheck(ctx)
		require.NoError(t, err)
		assert.True(t, status.Healthy)
		assert.Greater(t, status.Latency, time.Duration(0))
	})

	t.Run("Completion", func(t *testing.T) {
		req := &llm.ChatRequest{
			Model:     "claude-sonnet-4-6",
			Messages:  []llm.Message{{Role: llm.RoleUser, Content: "Say 'test' only"}},
			MaxTokens: 10,
		}
		resp, err := provider.Completion(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Choices)
	})
}
