package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/httpclient"
)

// OpenAIProvider talks to the OpenAI chat completions API and to the
// OpenAI-compatible APIs exposed by Azure OpenAI, DeepSeek, Mistral, and xAI.
type OpenAIProvider struct {
	cfg        config.LLMConfig
	httpClient *httpclient.Client
}

var openAICompatibleHosts = map[config.Provider]string{
	config.ProviderOpenAI:    "https://api.openai.com/v1",
	config.ProviderDeepSeek:  "https://api.deepseek.com/v1",
	config.ProviderMistralAI: "https://api.mistral.ai/v1",
	config.ProviderXAI:       "https://api.x.ai/v1",
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []openAIContentPart
}

type openAIContentPart struct {
	Type     string          `json:"type"` // "text" or "image_url"
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAITool struct {
	Type     string         `json:"type"` // always "function"
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
			ToolCalls        []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAIProvider builds a client for any OpenAI-compatible provider.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Model.Provider)
	}
	if cfg.Host == "" {
		host, ok := openAICompatibleHosts[cfg.Model.Provider]
		if !ok {
			return nil, fmt.Errorf("no default host for provider %s", cfg.Model.Provider)
		}
		cfg.Host = host
	}
	return &OpenAIProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		),
	}, nil
}

func (p *OpenAIProvider) Model() config.Model { return p.cfg.Model }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.Model.Provider == config.ProviderAzureOpenAI {
		httpReq.Header.Set("api-key", p.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.cfg.Model.Provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s API error (status %d): %s", p.cfg.Model.Provider, resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error: status %d: %s", p.cfg.Model.Provider, resp.StatusCode, string(respBody))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s API returned no choices", p.cfg.Model.Provider)
	}

	return p.parseResponse(req, &parsed)
}

func (p *OpenAIProvider) endpoint() string {
	host := strings.TrimSuffix(p.cfg.Host, "/")
	if p.cfg.Model.Provider == config.ProviderAzureOpenAI {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			host, p.cfg.Model.Name, p.cfg.APIVersion)
	}
	return host + "/chat/completions"
}

func (p *OpenAIProvider) buildRequest(req *Request) *openAIRequest {
	out := &openAIRequest{
		Model:     p.cfg.Model.Name,
		MaxTokens: p.cfg.MaxTokens,
	}
	if p.cfg.Temperature > 0 {
		temp := p.cfg.Temperature
		out.Temperature = &temp
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		if msg.ImagePNG == "" {
			out.Messages = append(out.Messages, openAIMessage{Role: string(msg.Role), Content: msg.Text})
			continue
		}
		parts := []openAIContentPart{
			{Type: "text", Text: msg.Text},
			{Type: "image_url", ImageURL: &openAIImageURL{
				URL: "data:image/png;base64," + msg.ImagePNG,
			}},
		}
		out.Messages = append(out.Messages, openAIMessage{Role: string(msg.Role), Content: parts})
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	if req.Structured != nil {
		out.ResponseFormat = &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   req.Structured.Name,
				Schema: req.Structured.Schema,
				Strict: true,
			},
		}
	}

	return out
}

func (p *OpenAIProvider) parseResponse(req *Request, parsed *openAIResponse) (*Response, error) {
	choice := parsed.Choices[0]

	out := &Response{
		Content:   choice.Message.Content,
		Reasoning: choice.Message.ReasoningContent,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}

	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parsing tool call arguments for %s: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{Tool: call.Function.Name, Args: args})
	}

	if req.Structured != nil && choice.Message.Content != "" {
		raw := json.RawMessage(choice.Message.Content)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("structured output is not valid JSON: %s", choice.Message.Content)
		}
		out.Structured = raw
	}

	return out, nil
}
