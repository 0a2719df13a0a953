package toolserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/halim/kalku/pkg/mcp"
)

// Dispatch looks up and executes one tool call against validated
// input. Failures at every level (unknown tool, invalid arguments,
// handler error, handler panic) come back as results with IsError
// set; nothing here ever surfaces as a transport fault. Calls are
// dispatched serially in arrival order, so handlers may assume they
// never run concurrently with each other.
func (r *Registry) Dispatch(ctx context.Context, params mcp.CallParams) mcp.ToolResult {
	tool := r.Get(params.Name)
	if tool == nil {
		log.Warn().Str("tool", params.Name).Msg("Unknown tool requested")
		return errorResult(fmt.Sprintf("unknown tool: %s", params.Name))
	}

	if err := validateArguments(tool.schema, params.Arguments); err != nil {
		log.Warn().Str("tool", params.Name).Err(err).Msg("Argument validation failed")
		return errorResult(fmt.Sprintf("invalid arguments for %s: %v", params.Name, err))
	}

	text, err := invoke(ctx, tool, params.Arguments)
	if err != nil {
		log.Debug().Str("tool", params.Name).Err(err).Msg("Tool returned error")
		return errorResult(err.Error())
	}

	return mcp.ToolResult{Content: []mcp.ContentBlock{mcp.TextContent(text)}}
}

// invoke runs the handler with panic recovery so a buggy tool body
// degrades to an isError result instead of killing the server.
func invoke(ctx context.Context, tool *Tool, args map[string]interface{}) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("tool", tool.Name).Interface("panic", rec).Msg("Tool handler panicked")
			err = fmt.Errorf("tool %s failed: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, args)
}

func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	sort.Strings(msgs)
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func errorResult(message string) mcp.ToolResult {
	return mcp.ToolResult{
		Content: []mcp.ContentBlock{mcp.TextContent(message)},
		IsError: true,
	}
}
