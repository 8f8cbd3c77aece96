package agents

import (
	"context"
	"strings"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// ChangesAnalyzer summarizes a structural tree diff in one line of prose.
type ChangesAnalyzer struct {
	agent
}

// NewChangesAnalyzer builds a changes analyzer.
func NewChangesAnalyzer(llm llms.Provider, provider config.Provider) (*ChangesAnalyzer, error) {
	base, err := newAgent("changes_analyzer", provider, llm)
	if err != nil {
		return nil, err
	}
	return &ChangesAnalyzer{agent: base}, nil
}

// Invoke describes what a diff means for the user.
func (c *ChangesAnalyzer) Invoke(ctx context.Context, diff string) (string, error) {
	c.logger.Info("Starting changes analysis:")
	c.logger.Debug("  -> Diff: " + diff)

	req := &llms.Request{
		System: c.prompts["system"],
		Messages: []llms.Message{{
			Role: llms.RoleUser,
			Text: formatPrompt(c.prompts["user"], map[string]string{"diff": diff}),
		}},
	}

	resp, err := c.invoke(ctx, req)
	if err != nil {
		return "", err
	}

	result := strings.ReplaceAll(resp.Content, "\n\n", " ")
	c.logger.Info("  <- Result: " + result)
	return result, nil
}
