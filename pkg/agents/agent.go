// Package agents implements the six LLM-backed agents driving the
// automation pipeline: Planner, Actor, Retriever, Locator, Area, and
// ChangesAnalyzer. Agents share prompt loading, invocation through a
// (cached) provider, and per-agent token accounting.
package agents

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
	"github.com/alumnium-hq/alumnium/pkg/logger"
)

// ListSeparator delimits multi-value outputs in unstructured mode.
const ListSeparator = "<SEP>"

// noopValue marks "not present in context" in Retriever output.
const noopValue = "NOOP"

//go:embed prompts
var promptFS embed.FS

// providerPromptDirs maps providers to their prompt directory. Providers
// without an entry, or without the directory, use the openai prompts.
var providerPromptDirs = map[config.Provider]string{
	config.ProviderAnthropic:    "anthropic",
	config.ProviderAWSAnthropic: "anthropic",
	config.ProviderGoogle:       "google",
	config.ProviderDeepSeek:     "deepseek",
	config.ProviderAWSMeta:      "meta",
	config.ProviderMistralAI:    "mistralai",
	config.ProviderOllama:       "ollama",
	config.ProviderXAI:          "xai",
}

// agent carries the state shared by all agent kinds. Usage counters are
// guarded by the owning session's lock, not by the agent itself.
type agent struct {
	name    string
	llm     llms.Provider
	prompts map[string]string
	usage   llms.Usage
	logger  *slog.Logger
}

func newAgent(name string, provider config.Provider, llm llms.Provider) (agent, error) {
	prompts, err := loadPrompts(name, provider)
	if err != nil {
		return agent{}, err
	}
	return agent{
		name:    name,
		llm:     llm,
		prompts: prompts,
		logger:  logger.GetLogger(),
	}, nil
}

// loadPrompts reads every *.md file from the agent's provider directory,
// keyed by file stem. Missing provider directories fall back to openai.
func loadPrompts(agentName string, provider config.Provider) (map[string]string, error) {
	dir := providerPromptDirs[provider]
	if dir == "" {
		dir = "openai"
	}

	base := path.Join("prompts", agentName, dir)
	entries, err := fs.ReadDir(promptFS, base)
	if err != nil {
		base = path.Join("prompts", agentName, "openai")
		entries, err = fs.ReadDir(promptFS, base)
		if err != nil {
			return nil, fmt.Errorf("loading prompts for %s: %w", agentName, err)
		}
	}

	prompts := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := promptFS.ReadFile(path.Join(base, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading prompt %s: %w", entry.Name(), err)
		}
		stem := strings.TrimSuffix(entry.Name(), ".md")
		prompts[stem] = strings.TrimRight(string(data), "\n")
	}
	return prompts, nil
}

// formatPrompt substitutes {name} placeholders. Only known placeholders
// are replaced, so literal braces elsewhere in a prompt survive.
func formatPrompt(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// invoke runs a request through the provider and accumulates usage.
func (a *agent) invoke(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	resp, err := a.llm.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Reasoning != "" {
		a.logger.Info("  <- Reasoning: " + resp.Reasoning)
	}
	a.usage.Add(resp.Usage)
	return resp, nil
}

// Usage returns the agent's running token totals.
func (a *agent) Usage() llms.Usage {
	return a.usage
}

// decodeStructured unmarshals a structured reply into out. When the
// provider returned no bound object, the reply text is scanned for a JSON
// object instead.
func decodeStructured(resp *llms.Response, out any) error {
	raw := resp.Structured
	if raw == nil {
		raw = llms.ExtractJSONObject(resp.Content)
	}
	if raw == nil {
		return fmt.Errorf("no structured output in response: %s", resp.Content)
	}
	return json.Unmarshal(raw, out)
}

var nearSeparator = regexp.MustCompile(regexp.QuoteMeta(ListSeparator[:len(ListSeparator)-1]) + ".")

// normalizeSeparators trims stray leading/trailing separators and coerces
// near-miss separators (models occasionally mangle the closing bracket).
func normalizeSeparators(value string) string {
	value = strings.TrimPrefix(value, ListSeparator)
	value = strings.TrimSuffix(value, ListSeparator)
	value = strings.TrimSpace(value)
	return nearSeparator.ReplaceAllString(value, ListSeparator)
}

// splitSeparated splits a separator-delimited value into trimmed non-empty
// items.
func splitSeparated(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ListSeparator) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
