package agent

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one item of message content: plain text, a tool
// invocation requested by the model, or the result fed back to it.
type Block struct {
	Type BlockType `json:"type"`

	// Text carries text and tool_result content.
	Text string `json:"text,omitempty"`

	// ID, Name, and Input describe a tool_use block.
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// ToolUseID and IsError describe a tool_result block.
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is one entry of the conversation history: a role and an
// ordered sequence of content blocks. History is append-only and
// lives only for the process lifetime.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// TextMessage builds a single-text-block message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{{Type: BlockText, Text: text}}}
}

// Text joins the message's text blocks.
func (m Message) Text() string {
	out := ""
	for _, block := range m.Blocks {
		if block.Type == BlockText {
			out += block.Text
		}
	}
	return out
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// TokenUsage tracks token consumption for one model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
