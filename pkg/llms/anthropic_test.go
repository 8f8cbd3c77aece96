package llms

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnium-hq/alumnium/pkg/config"
)

func anthropicTestConfig(host string) config.LLMConfig {
	return config.LLMConfig{
		Model:     config.NewModel(config.ProviderAnthropic, "claude-sonnet-4-5"),
		Host:      host,
		APIKey:    "sk-ant-test",
		MaxTokens: 100,
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "the reply"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 9, "output_tokens": 4},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "the reply", resp.Content)
	// input and output are summed into the total
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 4, TotalTokens: 13}, resp.Usage)
	assert.Equal(t, "be brief", captured.System)
}

func TestAnthropicStructuredPrefill(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		// the reply continues the assistant "{" prefill
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `"explanation": "ok", "id": 4}`},
			},
			"usage": map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "find it"}},
		Structured: &StructuredOutputConfig{
			Name:   "locator",
			Schema: map[string]any{"type": "object"},
		},
	})
	require.NoError(t, err)

	// schema instruction lands in the system prompt, prefill as the last turn
	assert.Contains(t, captured.System, "JSON schema")
	last := captured.Messages[len(captured.Messages)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Equal(t, "{", last.Content)

	var decoded struct {
		Explanation string `json:"explanation"`
		ID          int    `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Structured, &decoded))
	assert.Equal(t, 4, decoded.ID)
}

func TestAnthropicToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "clicking now"},
				{"type": "tool_use", "name": "ClickTool", "input": map[string]any{"id": 5}},
			},
			"usage": map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "click it"}},
		Tools:    []ToolDefinition{{Name: "ClickTool"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "clicking now", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "ClickTool", resp.ToolCalls[0].Tool)
	assert.Equal(t, float64(5), resp.ToolCalls[0].Args["id"])
}
