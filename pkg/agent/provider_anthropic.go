package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/halim/kalku/pkg/mcp"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider with the given key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete makes one Messages API call.
func (p *AnthropicProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	messages, err := anthropicMessages(request.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: int64(request.MaxTokens),
	}

	if request.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.System}}
	}
	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}
	if len(request.Tools) > 0 {
		params.Tools = anthropicTools(request.Tools)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := ""
	var toolCalls []ToolCall
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &input); err != nil {
				return nil, fmt.Errorf("parse tool input for %s: %w", b.Name, err)
			}
			toolCalls = append(toolCalls, ToolCall{ID: b.ID, Name: b.Name, Input: input})
		}
	}

	return &Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// anthropicMessages converts conversation history to the SDK's
// message shape. Tool results ride in user messages per the API.
func anthropicMessages(messages []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, block := range msg.Blocks {
			switch block.Type {
			case BlockText:
				if block.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				}
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Text, block.IsError))
			default:
				return nil, fmt.Errorf("unsupported block type: %s", block.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	return out, nil
}

// anthropicTools converts the discovered catalog to the SDK's tool
// params, preserving the server's schemas verbatim.
func anthropicTools(tools []mcp.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.InputSchema["properties"],
			},
		}
		if required, ok := tool.InputSchema["required"].([]string); ok {
			param.InputSchema.Required = required
		} else if raw, ok := tool.InputSchema["required"].([]interface{}); ok {
			names := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					names = append(names, s)
				}
			}
			param.InputSchema.Required = names
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}
