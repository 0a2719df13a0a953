package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/halim/kalku/pkg/mcp"
)

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 4 << 20

// Server routes protocol methods to a Registry over a framed
// stream. Responses always echo the originating request id, so the
// client can match them regardless of completion order.
type Server struct {
	registry *Registry
	info     mcp.Implementation
	logger   zerolog.Logger

	writeMu sync.Mutex
}

// NewServer creates a server publishing the registry's tools under
// the given implementation identity.
func NewServer(registry *Registry, info mcp.Implementation, logger zerolog.Logger) *Server {
	return &Server{
		registry: registry,
		info:     info,
		logger:   logger.With().Str("component", "toolserver").Logger(),
	}
}

// request is the decoded shape of one inbound frame. A nil ID marks
// a notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Serve reads newline-framed requests from r and writes responses to
// w until EOF or context cancellation. A frame that fails to parse
// gets a parse-error response and the loop continues; mis-framing is
// local to one message.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info().Str("server_name", s.info.Name).Int("tools", s.registry.Len()).Msg("Serving")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn().Err(err).Msg("Malformed frame")
			s.write(w, mcp.NewNullIDErrorResponse(mcp.CodeParseError, "parse error"))
			continue
		}

		if req.ID == nil {
			s.handleNotification(req)
			continue
		}

		s.write(w, s.handleRequest(ctx, req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	s.logger.Info().Msg("Request stream closed")
	return nil
}

func (s *Server) handleNotification(req request) {
	switch req.Method {
	case mcp.MethodInitialized:
		s.logger.Debug().Msg("Client completed handshake")
	default:
		s.logger.Debug().Str("method", req.Method).Msg("Ignoring notification")
	}
}

func (s *Server) handleRequest(ctx context.Context, req request) *mcp.Response {
	id := *req.ID

	switch req.Method {
	case mcp.MethodInitialize:
		return s.handleInitialize(id, req.Params)

	case mcp.MethodPing:
		return mustResponse(id, struct{}{})

	case mcp.MethodToolsList:
		return mustResponse(id, mcp.ListToolsResult{Tools: s.registry.List()})

	case mcp.MethodToolsCall:
		var params mcp.CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcp.NewErrorResponse(id, mcp.CodeInvalidParams, "invalid tools/call params")
		}
		s.logger.Debug().Str("tool", params.Name).Int64("id", id).Msg("Dispatching tool call")
		return mustResponse(id, s.registry.Dispatch(ctx, params))

	default:
		return mcp.NewErrorResponse(id, mcp.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(id int64, params json.RawMessage) *mcp.Response {
	var init mcp.InitializeParams
	if err := json.Unmarshal(params, &init); err != nil {
		return mcp.NewErrorResponse(id, mcp.CodeInvalidParams, "invalid initialize params")
	}

	if init.ProtocolVersion != mcp.ProtocolVersion {
		s.logger.Warn().Str("requested", init.ProtocolVersion).Msg("Unsupported protocol version")
		return mcp.NewErrorResponse(id, mcp.CodeInvalidParams,
			fmt.Sprintf("unsupported protocol version: %s", init.ProtocolVersion))
	}

	s.logger.Info().
		Str("client_name", init.ClientInfo.Name).
		Str("client_version", init.ClientInfo.Version).
		Msg("Client initializing")

	return mustResponse(id, mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    mcp.ServerCapabilities{Tools: &struct{}{}},
		ServerInfo:      s.info,
	})
}

// write serializes one response as a single frame. The mutex keeps
// frames from interleaving if handlers ever run concurrently.
func (s *Server) write(w io.Writer, resp interface{}) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal response")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}

func mustResponse(id int64, result interface{}) *mcp.Response {
	resp, err := mcp.NewResponse(id, result)
	if err != nil {
		return mcp.NewErrorResponse(id, mcp.CodeInternalError, err.Error())
	}
	return resp
}
