package agents

import (
	"context"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Locator is the structured locator reply.
type Locator struct {
	Explanation string `json:"explanation" jsonschema:"description=Explanation how the element was identified and why it matches the description. Always include the description and the matching element in the explanation."`
	ID          int    `json:"id" jsonschema:"description=Identifier of the element that matches the description in the accessibility tree."`
}

// LocatorAgent finds elements matching a description.
type LocatorAgent struct {
	agent
	structured bool
}

// NewLocatorAgent builds a locator agent.
func NewLocatorAgent(llm llms.Provider, provider config.Provider) (*LocatorAgent, error) {
	base, err := newAgent("locator", provider, llm)
	if err != nil {
		return nil, err
	}
	return &LocatorAgent{agent: base, structured: llms.SupportsStructuredOutput(provider)}, nil
}

// Invoke locates elements matching the description. The reply carries one
// element today; the list shape leaves room for multi-match models.
func (l *LocatorAgent) Invoke(ctx context.Context, description, treeXML string) ([]Locator, error) {
	l.logger.Info("Starting element location:")
	l.logger.Info("  -> Description: " + description)
	l.logger.Debug("  -> Accessibility tree: " + treeXML)

	req := &llms.Request{
		System: l.prompts["system"],
		Messages: []llms.Message{{
			Role: llms.RoleUser,
			Text: formatPrompt(l.prompts["user"], map[string]string{
				"accessibility_tree": treeXML,
				"description":        description,
			}),
		}},
	}
	if l.structured {
		req.Structured = &llms.StructuredOutputConfig{Name: "locator", Schema: schemaFor(&Locator{})}
	}

	resp, err := l.invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	var located Locator
	if err := decodeStructured(resp, &located); err != nil {
		return nil, err
	}

	l.logger.Info("  <- Result", "id", located.ID)
	return []Locator{located}, nil
}
