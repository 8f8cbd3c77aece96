package agents

import (
	"context"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Area is the structured area reply.
type Area struct {
	Explanation string `json:"explanation" jsonschema:"description=Explanation how the area was determined and why it's related to the requested information. Always include the requested information and its value in the explanation."`
	ID          int    `json:"id" jsonschema:"description=Identifier of the element that corresponds to the area in the accessibility tree."`
}

// AreaAgent locates the subtree matching a description, used to narrow
// subsequent calls.
type AreaAgent struct {
	agent
	structured bool
}

// NewAreaAgent builds an area agent.
func NewAreaAgent(llm llms.Provider, provider config.Provider) (*AreaAgent, error) {
	base, err := newAgent("area", provider, llm)
	if err != nil {
		return nil, err
	}
	return &AreaAgent{agent: base, structured: llms.SupportsStructuredOutput(provider)}, nil
}

// Invoke finds the area matching the description.
func (a *AreaAgent) Invoke(ctx context.Context, description, treeXML string) (*Area, error) {
	a.logger.Info("Starting area detection:")
	a.logger.Info("  -> Description: " + description)
	a.logger.Debug("  -> Accessibility tree: " + treeXML)

	req := &llms.Request{
		System: a.prompts["system"],
		Messages: []llms.Message{{
			Role: llms.RoleUser,
			Text: formatPrompt(a.prompts["user"], map[string]string{
				"accessibility_tree": treeXML,
				"description":        description,
			}),
		}},
	}
	if a.structured {
		req.Structured = &llms.StructuredOutputConfig{Name: "area", Schema: schemaFor(&Area{})}
	}

	resp, err := a.invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	var area Area
	if err := decodeStructured(resp, &area); err != nil {
		return nil, err
	}

	a.logger.Info("  <- Result", "id", area.ID)
	return &area, nil
}
