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

const (
	anthropicDefaultHost = "https://api.anthropic.com"
	anthropicAPIVersion  = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic Messages API. Anthropic has no
// native structured-output binding; the schema goes into the system prompt
// and an assistant "{" prefill forces a JSON object reply.
type AnthropicProvider struct {
	cfg        config.LLMConfig
	httpClient *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContent
}

type anthropicContent struct {
	Type   string           `json:"type"` // "text", "image"
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []struct {
		Type     string         `json:"type"` // "text", "tool_use", "thinking"
		Text     string         `json:"text,omitempty"`
		Thinking string         `json:"thinking,omitempty"`
		Name     string         `json:"name,omitempty"`
		Input    map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider builds an Anthropic Messages API client.
func NewAnthropicProvider(cfg config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Host == "" {
		cfg.Host = anthropicDefaultHost
	}
	return &AnthropicProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		),
	}, nil
}

func (p *AnthropicProvider) Model() config.Model { return p.cfg.Model }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	request := p.buildRequest(req)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.Host, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic API error (status %d): %s: %s",
			resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic API error: status %d: %s", resp.StatusCode, string(respBody))
	}

	return p.parseResponse(req, &parsed)
}

func (p *AnthropicProvider) buildRequest(req *Request) *anthropicRequest {
	out := &anthropicRequest{
		Model:     p.cfg.Model.Name,
		MaxTokens: p.cfg.MaxTokens,
		System:    req.System,
	}
	if p.cfg.Temperature > 0 {
		temp := p.cfg.Temperature
		out.Temperature = &temp
	}

	for _, msg := range req.Messages {
		if msg.ImagePNG == "" {
			out.Messages = append(out.Messages, anthropicMessage{Role: string(msg.Role), Content: msg.Text})
			continue
		}
		content := []anthropicContent{
			{Type: "text", Text: msg.Text},
			{Type: "image", Source: &anthropicSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      msg.ImagePNG,
			}},
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: string(msg.Role), Content: content})
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	if req.Structured != nil {
		schemaJSON, _ := json.Marshal(req.Structured.Schema)
		instruction := fmt.Sprintf(
			"Respond with a single JSON object matching this JSON schema, with no surrounding text:\n%s",
			schemaJSON)
		if out.System != "" {
			out.System += "\n\n" + instruction
		} else {
			out.System = instruction
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: "{"})
	}

	return out
}

func (p *AnthropicProvider) parseResponse(req *Request, parsed *anthropicResponse) (*Response, error) {
	out := &Response{
		Usage: Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			out.Reasoning = block.Thinking
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{Tool: block.Name, Args: args})
		}
	}
	out.Content = text.String()

	if req.Structured != nil {
		// The reply continues the "{" prefill.
		raw := json.RawMessage("{" + strings.TrimSpace(out.Content))
		if !json.Valid(raw) {
			return nil, fmt.Errorf("structured output is not valid JSON: %s", out.Content)
		}
		out.Structured = raw
	}

	return out, nil
}
