package agents

import (
	"context"
	"strings"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Actor turns one planner step into concrete tool calls referencing opaque
// element IDs. The caller rewrites those to raw IDs before dispatch.
type Actor struct {
	agent
	tools []llms.ToolDefinition
}

// NewActor builds an actor bound to the session's full tool schema.
func NewActor(llm llms.Provider, provider config.Provider, tools []llms.ToolDefinition) (*Actor, error) {
	base, err := newAgent("actor", provider, llm)
	if err != nil {
		return nil, err
	}
	return &Actor{agent: base, tools: tools}, nil
}

// Invoke executes one step. An empty or whitespace step produces no tool
// calls and no LLM call.
func (a *Actor) Invoke(ctx context.Context, goal, step, treeXML string) (string, []llms.ToolCall, error) {
	if strings.TrimSpace(step) == "" {
		return "", nil, nil
	}

	a.logger.Info("Starting action:")
	a.logger.Info("  -> Goal: " + goal)
	a.logger.Info("  -> Step: " + step)
	a.logger.Debug("  -> Accessibility tree: " + treeXML)

	req := &llms.Request{
		System: a.prompts["system"],
		Messages: []llms.Message{{
			Role: llms.RoleUser,
			Text: formatPrompt(a.prompts["user"], map[string]string{
				"goal":               goal,
				"step":               step,
				"accessibility_tree": treeXML,
			}),
		}},
		Tools: a.tools,
	}

	resp, err := a.invoke(ctx, req)
	if err != nil {
		return "", nil, err
	}

	a.logger.Info("  <- Tools", "count", len(resp.ToolCalls))
	return resp.Reasoning, resp.ToolCalls, nil
}
