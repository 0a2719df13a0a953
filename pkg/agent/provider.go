package agent

import (
	"context"
	"fmt"

	"github.com/halim/kalku/pkg/mcp"
)

// Provider is a model API client. Implementations translate the
// neutral request/response shapes to one vendor's wire format.
type Provider interface {
	// Complete sends the conversation and tool catalog to the model
	// and returns its next message.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Request carries everything one model call needs. The tool catalog
// is the session's discovery snapshot, passed through unchanged.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []mcp.ToolDescriptor
	MaxTokens   int
	Temperature float64
}

// Response is the model's reply: assistant text plus zero or more
// requested tool invocations, in the order the model emitted them.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderConfig selects and authenticates a provider. The API key is
// injected here, once, at construction time.
type ProviderConfig struct {
	Provider string // "anthropic" or "openai"
	APIKey   string
}

// NewProvider builds a model provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
