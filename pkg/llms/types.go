// Package llms normalizes chat, tool-calling, and structured-output requests
// across LLM providers into a single request/response shape.
package llms

import (
	"context"
	"encoding/json"

	"github.com/alumnium-hq/alumnium/pkg/config"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. ImagePNG, when set, carries a
// base64-encoded PNG attached alongside the text.
type Message struct {
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	ImagePNG string `json:"image_png,omitempty"`
}

// ToolDefinition describes a callable tool in OpenAI function style.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation emitted by the model.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// StructuredOutputConfig asks the provider to reply with an object matching
// the given JSON schema.
type StructuredOutputConfig struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request is a provider-agnostic chat request.
type Request struct {
	System     string                  `json:"system,omitempty"`
	Messages   []Message               `json:"messages"`
	Tools      []ToolDefinition        `json:"tools,omitempty"`
	Structured *StructuredOutputConfig `json:"structured,omitempty"`
}

// Usage counts tokens spent on a call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the normalized reply shape shared by all providers.
type Response struct {
	// Content is the plain text reply.
	Content string `json:"content"`
	// Reasoning is the provider's chain-of-thought text when exposed
	// (reasoning_content, summary, or thinking depending on provider).
	Reasoning string `json:"reasoning,omitempty"`
	// Structured holds the raw JSON object when the request asked for
	// structured output; nil otherwise.
	Structured json.RawMessage `json:"structured,omitempty"`
	// ToolCalls lists tool invocations emitted by the model.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Provider is the single entry point to a model.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Model() config.Model
	Close() error
}

// SupportsStructuredOutput reports whether a provider binds structured
// output schemas natively. Providers that do not (Ollama) reply with plain
// text which callers parse using a separator token.
func SupportsStructuredOutput(p config.Provider) bool {
	return p != config.ProviderOllama
}

// New constructs the provider client for the configured model.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Model.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.ProviderOpenAI, config.ProviderAzureOpenAI, config.ProviderDeepSeek,
		config.ProviderMistralAI, config.ProviderXAI:
		return NewOpenAIProvider(cfg)
	case config.ProviderGoogle:
		return NewGeminiProvider(cfg)
	case config.ProviderAWSAnthropic, config.ProviderAWSMeta:
		return NewBedrockProvider(cfg)
	case config.ProviderOllama:
		return NewOllamaProvider(cfg)
	default:
		_, err := config.ParseProvider(string(cfg.Model.Provider))
		return nil, err
	}
}
