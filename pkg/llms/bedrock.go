package llms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/alumnium-hq/alumnium/pkg/config"
)

// BedrockProvider serves Anthropic and Meta models hosted on AWS Bedrock
// through the Converse API. Credentials come from the AWS default chain.
// Throttling retries are delegated to the SDK retryer, bounded to the same
// attempt count as the HTTP providers.
type BedrockProvider struct {
	cfg    config.LLMConfig
	client *bedrockruntime.Client
}

// NewBedrockProvider builds a Bedrock Converse client.
func NewBedrockProvider(cfg config.LLMConfig) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRetryMaxAttempts(8),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &BedrockProvider{
		cfg:    cfg,
		client: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func (p *BedrockProvider) Model() config.Model { return p.cfg.Model }

func (p *BedrockProvider) Close() error { return nil }

func (p *BedrockProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.cfg.Model.Name),
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(p.cfg.MaxTokens)),
		},
	}
	if p.cfg.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(p.cfg.Temperature))
	}

	system := req.System
	if req.Structured != nil {
		schemaJSON, _ := json.Marshal(req.Structured.Schema)
		instruction := fmt.Sprintf(
			"Respond with a single JSON object matching this JSON schema, with no surrounding text:\n%s",
			schemaJSON)
		if system != "" {
			system += "\n\n" + instruction
		} else {
			system = instruction
		}
	}
	if system != "" {
		input.System = []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: system},
		}
	}

	for _, msg := range req.Messages {
		role := bedrocktypes.ConversationRoleUser
		if msg.Role == RoleAssistant {
			role = bedrocktypes.ConversationRoleAssistant
		}
		content := []bedrocktypes.ContentBlock{
			&bedrocktypes.ContentBlockMemberText{Value: msg.Text},
		}
		if msg.ImagePNG != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.ImagePNG)
			if err != nil {
				return nil, fmt.Errorf("decoding screenshot: %w", err)
			}
			content = append(content, &bedrocktypes.ContentBlockMemberImage{
				Value: bedrocktypes.ImageBlock{
					Format: bedrocktypes.ImageFormatPng,
					Source: &bedrocktypes.ImageSourceMemberBytes{Value: raw},
				},
			})
		}
		input.Messages = append(input.Messages, bedrocktypes.Message{
			Role:    role,
			Content: content,
		})
	}

	if len(req.Tools) > 0 {
		var tools []bedrocktypes.Tool
		for _, tool := range req.Tools {
			tools = append(tools, &bedrocktypes.ToolMemberToolSpec{
				Value: bedrocktypes.ToolSpecification{
					Name:        aws.String(tool.Name),
					Description: aws.String(tool.Description),
					InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(tool.Parameters),
					},
				},
			})
		}
		input.ToolConfig = &bedrocktypes.ToolConfiguration{Tools: tools}
	}

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse failed: %w", err)
	}

	return p.parseResponse(req, output)
}

func (p *BedrockProvider) parseResponse(req *Request, output *bedrockruntime.ConverseOutput) (*Response, error) {
	out := &Response{}
	if output.Usage != nil {
		out.Usage = Usage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}

	var text strings.Builder
	if message, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
		for _, block := range message.Value.Content {
			switch typed := block.(type) {
			case *bedrocktypes.ContentBlockMemberText:
				text.WriteString(typed.Value)
			case *bedrocktypes.ContentBlockMemberReasoningContent:
				if reasoning, ok := typed.Value.(*bedrocktypes.ReasoningContentBlockMemberReasoningText); ok {
					out.Reasoning = aws.ToString(reasoning.Value.Text)
				}
			case *bedrocktypes.ContentBlockMemberToolUse:
				args := map[string]any{}
				if typed.Value.Input != nil {
					raw, err := typed.Value.Input.MarshalSmithyDocument()
					if err == nil {
						_ = json.Unmarshal(raw, &args)
					}
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					Tool: aws.ToString(typed.Value.Name),
					Args: args,
				})
			}
		}
	}
	out.Content = text.String()

	if req.Structured != nil {
		raw := ExtractJSONObject(out.Content)
		if raw == nil {
			return nil, fmt.Errorf("structured output is not valid JSON: %s", out.Content)
		}
		out.Structured = raw
	}

	return out, nil
}
