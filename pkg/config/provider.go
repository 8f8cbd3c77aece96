package config

import (
	"fmt"
	"strings"
)

// Provider identifies an LLM provider family.
type Provider string

const (
	ProviderAnthropic    Provider = "anthropic"
	ProviderAWSAnthropic Provider = "aws_anthropic"
	ProviderOpenAI       Provider = "openai"
	ProviderAzureOpenAI  Provider = "azure_openai"
	ProviderGoogle       Provider = "google"
	ProviderDeepSeek     Provider = "deepseek"
	ProviderAWSMeta      Provider = "aws_meta"
	ProviderMistralAI    Provider = "mistralai"
	ProviderOllama       Provider = "ollama"
	ProviderXAI          Provider = "xai"
)

// Providers lists every supported provider tag in a stable order.
var Providers = []Provider{
	ProviderAnthropic,
	ProviderAWSAnthropic,
	ProviderOpenAI,
	ProviderAzureOpenAI,
	ProviderGoogle,
	ProviderDeepSeek,
	ProviderAWSMeta,
	ProviderMistralAI,
	ProviderOllama,
	ProviderXAI,
}

// defaultModelNames maps each provider to the model used when a session
// does not name one explicitly.
var defaultModelNames = map[Provider]string{
	ProviderAnthropic:    "claude-3-5-haiku-20241022",
	ProviderAWSAnthropic: "anthropic.claude-3-5-haiku-20241022-v1:0",
	ProviderOpenAI:       "gpt-4o-mini",
	ProviderAzureOpenAI:  "gpt-4o-mini",
	ProviderGoogle:       "gemini-2.0-flash",
	ProviderDeepSeek:     "deepseek-chat",
	ProviderAWSMeta:      "us.meta.llama3-2-90b-instruct-v1:0",
	ProviderMistralAI:    "mistral-small-latest",
	ProviderOllama:       "mistral-small3.1",
	ProviderXAI:          "grok-3-mini",
}

// ParseProvider converts a string tag into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (supported: %s)", s, joinProviders())
}

func joinProviders() string {
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// Model is a (provider, name) pair identifying a concrete model.
type Model struct {
	Provider Provider `json:"provider" yaml:"provider"`
	Name     string   `json:"name" yaml:"name"`
}

// NewModel builds a Model, filling in the provider's default model name
// when name is empty.
func NewModel(provider Provider, name string) Model {
	if name == "" {
		name = defaultModelNames[provider]
	}
	return Model{Provider: provider, Name: name}
}

// ParseModel parses a "provider/name" string. The name part is optional;
// "anthropic" resolves to the provider's default model.
func ParseModel(s string) (Model, error) {
	providerPart, namePart, _ := strings.Cut(s, "/")
	provider, err := ParseProvider(providerPart)
	if err != nil {
		return Model{}, err
	}
	return NewModel(provider, namePart), nil
}

// String renders the model as "provider/name".
func (m Model) String() string {
	return string(m.Provider) + "/" + m.Name
}
