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

const geminiDefaultHost = "https://generativelanguage.googleapis.com"

// GeminiProvider talks to the Google Gemini generateContent API. Structured
// output uses the native responseSchema binding.
type GeminiProvider struct {
	cfg        config.LLMConfig
	httpClient *httpclient.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
	Tools             []geminiToolSet   `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	InlineData   *geminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiGenConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiToolSet struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGeminiProvider builds a Gemini client.
func NewGeminiProvider(cfg config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if cfg.Host == "" {
		cfg.Host = geminiDefaultHost
	}
	return &GeminiProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		),
	}, nil
}

func (p *GeminiProvider) Model() config.Model { return p.cfg.Model }

func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(p.cfg.Host, "/"), p.cfg.Model.Name, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini API error (status %d): %s: %s",
			resp.StatusCode, parsed.Error.Status, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini API returned no candidates")
	}

	return p.parseResponse(req, &parsed)
}

func (p *GeminiProvider) buildRequest(req *Request) *geminiRequest {
	out := &geminiRequest{
		GenerationConfig: &geminiGenConfig{MaxOutputTokens: p.cfg.MaxTokens},
	}
	if p.cfg.Temperature > 0 {
		temp := p.cfg.Temperature
		out.GenerationConfig.Temperature = &temp
	}

	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		parts := []geminiPart{{Text: msg.Text}}
		if msg.ImagePNG != "" {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     msg.ImagePNG,
			}})
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: parts})
	}

	if len(req.Tools) > 0 {
		set := geminiToolSet{}
		for _, tool := range req.Tools {
			set.FunctionDeclarations = append(set.FunctionDeclarations, geminiFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  sanitizeGeminiSchema(tool.Parameters),
			})
		}
		out.Tools = []geminiToolSet{set}
	}

	if req.Structured != nil {
		out.GenerationConfig.ResponseMimeType = "application/json"
		out.GenerationConfig.ResponseSchema = sanitizeGeminiSchema(req.Structured.Schema)
	}

	return out
}

// sanitizeGeminiSchema strips JSON-Schema keywords the Gemini API rejects.
// Gemini accepts an OpenAPI-style subset: type, format, description, enum,
// items, properties, required, nullable.
func sanitizeGeminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	allowed := map[string]bool{
		"type": true, "format": true, "description": true, "enum": true,
		"items": true, "properties": true, "required": true, "nullable": true,
	}
	out := make(map[string]any, len(schema))
	for key, value := range schema {
		if !allowed[key] {
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			if key == "properties" {
				props := make(map[string]any, len(typed))
				for name, prop := range typed {
					if propMap, ok := prop.(map[string]any); ok {
						props[name] = sanitizeGeminiSchema(propMap)
					} else {
						props[name] = prop
					}
				}
				out[key] = props
			} else {
				out[key] = sanitizeGeminiSchema(typed)
			}
		default:
			out[key] = value
		}
	}
	return out
}

func (p *GeminiProvider) parseResponse(req *Request, parsed *geminiResponse) (*Response, error) {
	out := &Response{}
	if parsed.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{Tool: part.FunctionCall.Name, Args: args})
		}
	}
	out.Content = text.String()

	if req.Structured != nil && out.Content != "" {
		raw := json.RawMessage(out.Content)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("structured output is not valid JSON: %s", out.Content)
		}
		out.Structured = raw
	}

	return out, nil
}
