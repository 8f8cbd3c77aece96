package agents

import (
	"context"
	"strings"

	"github.com/alumnium-hq/alumnium/pkg/config"
	"github.com/alumnium-hq/alumnium/pkg/llms"
)

// RetrievedInformation is the structured retriever reply.
type RetrievedInformation struct {
	Explanation string `json:"explanation" jsonschema:"description=Explanation how information was retrieved and why it's related to the requested information. Always include the requested information and its value in the explanation."`
	Value       string `json:"value" jsonschema:"description=The precise retrieved information value without additional data. If the information is not present in context\\, reply NOOP."`
}

// Retriever answers data questions about the current screen. Values
// containing the list separator come back as a string slice; the NOOP
// sentinel passes through for the caller to convert.
type Retriever struct {
	agent
	structured bool
	system     string
}

// NewRetriever builds a retriever.
func NewRetriever(llm llms.Provider, provider config.Provider) (*Retriever, error) {
	base, err := newAgent("retriever", provider, llm)
	if err != nil {
		return nil, err
	}
	r := &Retriever{agent: base, structured: llms.SupportsStructuredOutput(provider)}
	r.system = formatPrompt(r.prompts["system"], map[string]string{"separator": ListSeparator})
	return r, nil
}

// Invoke retrieves information. With a screenshot, the image replaces the
// tree text in the prompt body.
func (r *Retriever) Invoke(ctx context.Context, information, treeXML, title, url, screenshot string) (string, any, error) {
	r.logger.Info("Starting retrieval:")
	r.logger.Info("  -> Information: " + information)
	r.logger.Debug("  -> Accessibility tree: " + treeXML)
	r.logger.Debug("  -> Title: " + title)
	r.logger.Debug("  -> URL: " + url)

	var prompt strings.Builder
	if screenshot == "" {
		prompt.WriteString(formatPrompt(r.prompts["user_text"], map[string]string{
			"accessibility_tree": treeXML,
			"title":              title,
			"url":                url,
		}))
	}
	prompt.WriteString("\n")
	prompt.WriteString("Retrieve the following information: " + information)

	req := &llms.Request{
		System: r.system,
		Messages: []llms.Message{{
			Role:     llms.RoleUser,
			Text:     prompt.String(),
			ImagePNG: screenshot,
		}},
	}
	if r.structured {
		req.Structured = &llms.StructuredOutputConfig{
			Name:   "retrieved_information",
			Schema: schemaFor(&RetrievedInformation{}),
		}
	}

	resp, err := r.invoke(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var info RetrievedInformation
	if err := decodeStructured(resp, &info); err != nil {
		if !r.structured {
			// Unstructured models may reply with the bare value.
			info = RetrievedInformation{Value: strings.TrimSpace(resp.Content)}
		} else {
			return "", nil, err
		}
	}

	value := normalizeSeparators(info.Value)
	r.logger.Info("  <- Result", "value", value)

	if strings.Contains(value, ListSeparator) {
		return info.Explanation, splitSeparated(value), nil
	}
	return info.Explanation, value, nil
}
