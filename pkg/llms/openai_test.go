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

func openAITestConfig(host string) config.LLMConfig {
	return config.LLMConfig{
		Model:     config.NewModel(config.ProviderOpenAI, "gpt-4o-mini"),
		Host:      host,
		APIKey:    "sk-test",
		MaxTokens: 100,
	}
}

func openAIReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{
			"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15,
		},
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAIReply("hello back"))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello back", resp.Content)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
	assert.Equal(t, "hello", captured.Messages[1].Content)
}

func TestOpenAIGenerateWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "ClickTool", req.Tools[0].Function.Name)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "",
					"tool_calls": []map[string]any{{
						"function": map[string]any{
							"name":      "ClickTool",
							"arguments": `{"id": 3}`,
						},
					}},
				},
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "click the button"}},
		Tools:    []ToolDefinition{{Name: "ClickTool", Description: "Clicks an element"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "ClickTool", resp.ToolCalls[0].Tool)
	assert.Equal(t, float64(3), resp.ToolCalls[0].Args["id"])
}

func TestOpenAIStructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		assert.Equal(t, "plan", req.ResponseFormat.JSONSchema.Name)
		assert.True(t, req.ResponseFormat.JSONSchema.Strict)

		json.NewEncoder(w).Encode(openAIReply(`{"explanation": "ok", "actions": ["a"]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "plan it"}},
		Structured: &StructuredOutputConfig{
			Name:   "plan",
			Schema: map[string]any{"type": "object"},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Structured)
	var decoded struct {
		Explanation string   `json:"explanation"`
		Actions     []string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(resp.Structured, &decoded))
	assert.Equal(t, "ok", decoded.Explanation)
}

func TestOpenAIImageMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					ImageURL *struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image_url", req.Messages[0].Content[1].Type)
		assert.Equal(t, "data:image/png;base64,aGk=", req.Messages[0].Content[1].ImageURL.URL)

		json.NewEncoder(w).Encode(openAIReply("seen"))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "what is this", ImagePNG: "aGk="}},
	})
	require.NoError(t, err)
}

func TestOpenAIAPIError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad key", "type": "auth"},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(openAITestConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	// auth failures are not transient, no retry
	assert.Equal(t, 1, attempts)
}

func TestOpenAIMissingKey(t *testing.T) {
	_, err := NewOpenAIProvider(config.LLMConfig{
		Model: config.NewModel(config.ProviderOpenAI, "gpt-4o-mini"),
	})
	require.Error(t, err)
}

func TestAzureEndpointAndHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-10-21", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(openAIReply("from azure"))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(config.LLMConfig{
		Model:      config.NewModel(config.ProviderAzureOpenAI, "gpt-4o"),
		Host:       server.URL,
		APIKey:     "azure-key",
		APIVersion: "2024-10-21",
	})
	require.NoError(t, err)

	resp, err := provider.Generate(t.Context(), &Request{
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "from azure", resp.Content)
}
