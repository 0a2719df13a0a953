package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/halim/kalku/pkg/mcp"
)

// OpenAIProvider implements Provider for the Chat Completions API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete makes one Chat Completions API call.
func (p *OpenAIProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	messages, err := openaiMessages(request)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	if len(request.Tools) > 0 {
		params.Tools = openaiTools(request.Tools)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := response.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			return nil, fmt.Errorf("parse tool arguments for %s: %w", tc.Function.Name, err)
		}
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}

	return &Response{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// openaiMessages flattens block-structured history into the chat
// roles OpenAI expects: tool_use blocks become assistant tool calls,
// tool_result blocks become tool messages keyed by call id.
func openaiMessages(request Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}

	if request.System != "" {
		out = append(out, openai.SystemMessage(request.System))
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case RoleUser:
			for _, block := range msg.Blocks {
				switch block.Type {
				case BlockText:
					if block.Text != "" {
						out = append(out, openai.UserMessage(block.Text))
					}
				case BlockToolResult:
					out = append(out, openai.ToolMessage(block.ToolUseID, block.Text))
				default:
					return nil, fmt.Errorf("unsupported user block type: %s", block.Type)
				}
			}

		case RoleAssistant:
			text := ""
			var toolCalls []openai.ChatCompletionMessageToolCall
			for _, block := range msg.Blocks {
				switch block.Type {
				case BlockText:
					text += block.Text
				case BlockToolUse:
					args, err := json.Marshal(block.Input)
					if err != nil {
						return nil, fmt.Errorf("marshal tool input for %s: %w", block.Name, err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   block.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      block.Name,
							Arguments: string(args),
						},
					})
				default:
					return nil, fmt.Errorf("unsupported assistant block type: %s", block.Type)
				}
			}

			if len(toolCalls) > 0 {
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: toolCalls,
				}
				out = append(out, assistantMsg.ToParam())
			} else {
				out = append(out, openai.AssistantMessage(text))
			}
		}
	}

	return out, nil
}

func openaiTools(tools []mcp.ToolDescriptor) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.InputSchema),
			},
		})
	}
	return out
}
