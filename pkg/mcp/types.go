package mcp

import "strings"

// ProtocolVersion is the protocol revision advertised during the
// initialize handshake.
const ProtocolVersion = "2024-11-05"

// Protocol method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ToolDescriptor describes one tool exposed by a server: its unique
// name, a human description, and the JSON Schema for its arguments.
// Descriptors are immutable once published; the client caches a
// snapshot taken at discovery time.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ContentBlock is one item of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent builds a text content block.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ToolResult is the outcome of a tools/call. IsError marks a
// domain-level failure inside the handler; the content still carries
// a human-readable explanation. Transport failures never appear here.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Text joins the result's text blocks for display.
func (r *ToolResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CallParams is the params payload of a tools/call request.
type CallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ListToolsResult is the result payload of a tools/list response.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// Implementation identifies one side of the handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities declares what the server supports. Only tools
// are implemented here.
type ServerCapabilities struct {
	Tools *struct{} `json:"tools,omitempty"`
}

// InitializeParams is the params payload of an initialize request.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      Implementation         `json:"clientInfo"`
}

// InitializeResult is the result payload of an initialize response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}
