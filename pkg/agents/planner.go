package agents

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// Plan is the structured planner reply.
type Plan struct {
	Explanation string   `json:"explanation" jsonschema:"description=Explanation how the actions were determined and why they are related to the goal. Always include the goal\\, actions to achieve it\\, and their order in the explanation."`
	Actions     []string `json:"actions" jsonschema:"description=List of actions to achieve the goal."`
}

// Example is a learned (goal, actions) pair injected into the planner's
// few-shot slot.
type Example struct {
	Goal    string   `json:"goal"`
	Actions []string `json:"actions"`
}

const navigateToURLExample = `
Example:
Input:
Given the following XML accessibility tree:
` + "```xml" + `
<link href="http://foo.bar/baz" />
` + "```" + `
Outline the actions needed to achieve the following goal: open 'http://foo.bar/baz/123' URL
Output:
Explanation: In order to open URL, I am going to directly navigate to the requested URL.
Actions: ['navigate to "http://foo.bar/baz/123" URL']`

const uploadExample = `
Example:
Input:
Given the following XML accessibility tree:
` + "```xml" + `
<button name="Choose File" />
` + "```" + `
Outline the actions needed to achieve the following goal: upload '/tmp/test.txt', '/tmp/image.png'
Output:
Explanation: In order to upload the file, I am going to use the upload action on the file input button.
I don't need to click the button first, as the upload action will handle that.
Actions: ['upload ["/tmp/test.txt", "/tmp/image.png"] to button "Choose File"']`

// Planner turns a goal into an ordered list of natural-language steps.
type Planner struct {
	agent
	provider   config.Provider
	structured bool
	system     string
}

// NewPlanner builds a planner for the session's tool set. toolNames are
// the registered schema names (e.g. "ClickTool").
func NewPlanner(llm llms.Provider, provider config.Provider, toolNames []string) (*Planner, error) {
	base, err := newAgent("planner", provider, llm)
	if err != nil {
		return nil, err
	}

	pretty := make([]string, len(toolNames))
	for i, name := range toolNames {
		pretty[i] = prettifyToolName(name)
	}

	extraExamples := ""
	for _, name := range toolNames {
		switch name {
		case "NavigateToUrlTool":
			extraExamples += "\n\n" + strings.TrimSpace(navigateToURLExample)
		case "UploadTool":
			extraExamples += "\n\n" + strings.TrimSpace(uploadExample)
		}
	}

	p := &Planner{
		agent:      base,
		provider:   provider,
		structured: llms.SupportsStructuredOutput(provider),
	}
	p.system = formatPrompt(p.prompts["system"], map[string]string{
		"separator":      ListSeparator,
		"tools":          strings.Join(pretty, ", "),
		"extra_examples": extraExamples,
	})
	return p, nil
}

// prettifyToolName converts "NavigateToUrlTool" to "navigate to url".
func prettifyToolName(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteRune(' ')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSuffix(sb.String(), " tool")
}

// Invoke plans the steps to achieve a goal. Learned examples are injected
// as few-shot turns before the real prompt.
func (p *Planner) Invoke(ctx context.Context, goal, treeXML string, examples []Example) (string, []string, error) {
	p.logger.Info("Starting planning:")
	p.logger.Info("  -> Goal: " + goal)
	p.logger.Debug("  -> Accessibility tree: " + treeXML)

	req := &llms.Request{System: p.system}
	for _, example := range examples {
		req.Messages = append(req.Messages,
			llms.Message{Role: llms.RoleUser, Text: p.userPrompt(example.Goal, "")},
			llms.Message{Role: llms.RoleAssistant, Text: p.renderActions(example.Actions)},
		)
	}
	req.Messages = append(req.Messages, llms.Message{
		Role: llms.RoleUser,
		Text: p.userPrompt(goal, treeXML),
	})
	if p.structured {
		req.Structured = &llms.StructuredOutputConfig{Name: "plan", Schema: schemaFor(&Plan{})}
	}

	resp, err := p.invoke(ctx, req)
	if err != nil {
		return "", nil, err
	}

	if p.structured {
		var plan Plan
		if err := decodeStructured(resp, &plan); err != nil {
			return "", nil, err
		}
		steps := make([]string, 0, len(plan.Actions))
		for _, action := range plan.Actions {
			if action != "" {
				steps = append(steps, action)
			}
		}
		p.logger.Info("  <- Result", "explanation", plan.Explanation, "steps", len(steps))
		return plan.Explanation, steps, nil
	}

	content := normalizeSeparators(resp.Content)
	var steps []string
	for _, step := range splitSeparated(content) {
		if strings.ToUpper(step) != noopValue {
			steps = append(steps, step)
		}
	}
	p.logger.Info("  <- Result", "steps", len(steps))
	return "", steps, nil
}

func (p *Planner) userPrompt(goal, treeXML string) string {
	return formatPrompt(p.prompts["user"], map[string]string{
		"goal":               goal,
		"accessibility_tree": treeXML,
	})
}

func (p *Planner) renderActions(actions []string) string {
	if !p.structured {
		return strings.Join(actions, ListSeparator)
	}
	data, _ := json.Marshal(actions)
	return string(data)
}
