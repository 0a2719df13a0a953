package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/halim/kalku/pkg/mcp"
)

// ErrLoopLimitExceeded reports that one user turn hit its model/tool
// round-trip budget without the model settling on a final answer.
var ErrLoopLimitExceeded = errors.New("agent: tool round limit exceeded")

// defaultMaxRounds bounds runaway tool-calling when the config does
// not override it.
const defaultMaxRounds = 10

// ToolCaller is the slice of the session the loop needs: invoke a
// tool and read the discovered catalog.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error)
	Tools() []mcp.ToolDescriptor
}

// State tracks where a turn is in its lifecycle.
type State string

const (
	StateAwaitingInput  State = "awaiting_input"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateError          State = "error"
)

// LoopConfig configures the agent loop.
type LoopConfig struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64

	// MaxRounds caps model/tool round trips per user turn. Zero means
	// the default.
	MaxRounds int

	Logger zerolog.Logger
}

// Loop drives turn-taking between the model provider and tool
// execution. It owns the append-only conversation history; the tool
// catalog it forwards is the session's discovery snapshot.
type Loop struct {
	session  ToolCaller
	provider Provider
	cfg      LoopConfig
	logger   zerolog.Logger

	history []Message
	state   State
}

// NewLoop creates an agent loop over a session and a provider.
func NewLoop(session ToolCaller, provider Provider, cfg LoopConfig) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	return &Loop{
		session:  session,
		provider: provider,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "agent_loop").Logger(),
		state:    StateAwaitingInput,
	}
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return l.state
}

// History returns a copy of the conversation so far.
func (l *Loop) History() []Message {
	out := make([]Message, len(l.history))
	copy(out, l.history)
	return out
}

// RunTurn processes one user input to completion: it sends the
// history and tool catalog to the model, executes any requested tool
// calls through the session, feeds the results back, and repeats
// until the model answers with plain text or the round budget runs
// out. Tool-level failures (isError results) are appended as ordinary
// content for the model to react to; only session-fatal errors abort
// the turn.
func (l *Loop) RunTurn(ctx context.Context, input string) (string, error) {
	l.history = append(l.history, TextMessage(RoleUser, input))
	l.state = StateAwaitingModel

	rounds := 0
	for {
		response, err := l.provider.Complete(ctx, Request{
			Model:       l.cfg.Model,
			System:      l.cfg.SystemPrompt,
			Messages:    l.history,
			Tools:       l.session.Tools(),
			MaxTokens:   l.cfg.MaxTokens,
			Temperature: l.cfg.Temperature,
		})
		if err != nil {
			l.state = StateError
			return "", fmt.Errorf("model call: %w", err)
		}
		if response.Usage != nil {
			l.logger.Debug().
				Int("input_tokens", response.Usage.InputTokens).
				Int("output_tokens", response.Usage.OutputTokens).
				Msg("Model responded")
		}

		assistant := assistantMessage(response)

		if len(response.ToolCalls) == 0 {
			l.history = append(l.history, assistant)
			l.state = StateDone
			return response.Content, nil
		}

		if rounds >= l.cfg.MaxRounds {
			l.state = StateError
			return "", fmt.Errorf("%w: %d rounds", ErrLoopLimitExceeded, rounds)
		}
		rounds++

		l.state = StateExecutingTools
		results, err := l.executeCalls(ctx, response.ToolCalls)
		if err != nil {
			l.state = StateError
			return "", err
		}

		l.history = append(l.history, assistant)
		l.history = append(l.history, Message{Role: RoleUser, Blocks: results})
		l.state = StateAwaitingModel
	}
}

// executeCalls runs every tool call of one assistant turn concurrently
// (each carries its own correlation id) and returns the result blocks
// in the order the invocations appeared,
// not completion order. A session-fatal error from any call aborts
// the turn; an isError result does not.
func (l *Loop) executeCalls(ctx context.Context, calls []ToolCall) ([]Block, error) {
	results := make([]Block, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()

			l.logger.Info().Str("tool", call.Name).Str("tool_use_id", call.ID).Msg("Executing tool call")
			result, err := l.session.Call(ctx, call.Name, call.Input)
			if err != nil {
				errs[i] = fmt.Errorf("tool %s: %w", call.Name, err)
				return
			}
			if result.IsError {
				l.logger.Warn().Str("tool", call.Name).Str("message", result.Text()).Msg("Tool reported error")
			}
			results[i] = Block{
				Type:      BlockToolResult,
				ToolUseID: call.ID,
				Text:      result.Text(),
				IsError:   result.IsError,
			}
		}(i, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// assistantMessage rebuilds the model's reply as history blocks,
// preserving the invocation order it emitted.
func assistantMessage(response *Response) Message {
	blocks := []Block{}
	if response.Content != "" {
		blocks = append(blocks, Block{Type: BlockText, Text: response.Content})
	}
	for _, call := range response.ToolCalls {
		blocks = append(blocks, Block{
			Type:  BlockToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		})
	}
	return Message{Role: RoleAssistant, Blocks: blocks}
}
