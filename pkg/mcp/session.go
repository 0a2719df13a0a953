package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultCallTimeout bounds a single request/response exchange when
// the config does not override it.
const defaultCallTimeout = 30 * time.Second

// SessionConfig configures a Session.
type SessionConfig struct {
	// CallTimeout is the per-call deadline. Zero means the default.
	CallTimeout time.Duration

	// ClientName and ClientVersion identify this client during the
	// initialize handshake.
	ClientName    string
	ClientVersion string

	// Logger receives session diagnostics.
	Logger zerolog.Logger
}

// Session is one live protocol connection to a single server process.
// It performs the handshake, discovers tools, and correlates requests
// to responses by id. A dedicated read loop drains incoming frames so
// callers may keep any number of requests in flight concurrently.
type Session struct {
	id          string
	transport   Transport
	logger      zerolog.Logger
	callTimeout time.Duration
	clientInfo  Implementation

	nextID atomic.Int64

	mu          sync.Mutex
	pending     map[int64]chan *Response
	closed      bool
	initialized bool
	serverInfo  Implementation
	tools       []ToolDescriptor

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewSession wraps a transport and starts the read loop. The session
// owns the transport from here on; Shutdown releases it.
func NewSession(transport Transport, cfg SessionConfig) *Session {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "kalku"
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		transport: transport,
		logger: cfg.Logger.With().
			Str("component", "session").
			Str("session_id", id).
			Logger(),
		callTimeout: cfg.CallTimeout,
		clientInfo:  Implementation{Name: cfg.ClientName, Version: cfg.ClientVersion},
		pending:     make(map[int64]chan *Response),
	}

	go s.readLoop()

	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// incoming is the decoded shape of one frame. A message with a method
// and no id is a notification; a message with an id is a response.
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// readLoop drains the transport's frame stream and resolves pending
// requests as their responses arrive. It exits when the stream closes,
// failing every still-pending call with ErrDisconnected. A frame that
// does not decode is logged and skipped; the connection stays usable.
func (s *Session) readLoop() {
	for frame := range s.transport.Frames() {
		var msg incoming
		if err := json.Unmarshal(frame, &msg); err != nil {
			s.logger.Warn().Err(fmt.Errorf("%w: %v", ErrMalformed, err)).
				Int("frame_len", len(frame)).
				Msg("Skipping undecodable frame")
			continue
		}

		if msg.ID == nil {
			s.logger.Debug().Str("method", msg.Method).Msg("Dropping server notification")
			continue
		}

		resp := &Response{JSONRPC: msg.JSONRPC, ID: *msg.ID, Result: msg.Result, Error: msg.Error}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()

		if !ok {
			// Unsolicited or already-resolved id. Never fatal, never
			// delivered to an unrelated caller.
			s.logger.Debug().Int64("id", resp.ID).Msg("Dropping response with unknown id")
			continue
		}
		ch <- resp
	}

	s.failPending()
}

// failPending resolves every outstanding request with ErrDisconnected
// by closing its completion channel. Idempotent.
func (s *Session) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
}

// register allocates a completion slot for a fresh request id. Ids
// come from an atomic counter, so an id is never reused while a
// pending entry for it exists.
func (s *Session) register() (int64, chan *Response, error) {
	id := s.nextID.Add(1)
	ch := make(chan *Response, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, ErrDisconnected
	}
	s.pending[id] = ch
	return id, ch, nil
}

// unregister removes a pending entry if it is still present. Removal
// is idempotent: returning false means the read loop already resolved
// the request.
func (s *Session) unregister(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return ok
}

// roundTrip sends one request and suspends the caller until the
// matching response arrives, the per-call deadline elapses, the
// context is cancelled, or the transport disconnects. Only this
// caller suspends; the shared read loop never blocks on it.
func (s *Session) roundTrip(ctx context.Context, method string, params interface{}) (*Response, error) {
	id, ch, err := s.register()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	req, err := NewRequest(id, method, params)
	if err != nil {
		s.unregister(id)
		return nil, err
	}

	if err := s.transport.Send(req); err != nil {
		s.unregister(id)
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", method, ErrDisconnected)
		}
		return resp, nil

	case <-timer.C:
		if !s.unregister(id) {
			// The response landed while the timer fired; take it.
			if resp, ok := <-ch; ok {
				return resp, nil
			}
			return nil, fmt.Errorf("%s: %w", method, ErrDisconnected)
		}
		s.logger.Warn().Int64("id", id).Str("method", method).
			Dur("timeout", s.callTimeout).
			Msg("Request deadline elapsed")
		return nil, fmt.Errorf("%s after %s: %w", method, s.callTimeout, ErrCallTimeout)

	case <-ctx.Done():
		if !s.unregister(id) {
			if resp, ok := <-ch; ok {
				return resp, nil
			}
			return nil, fmt.Errorf("%s: %w", method, ErrDisconnected)
		}
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// Initialize performs the version-negotiation handshake. It must
// complete before any tool call. An incompatible server version
// yields ErrVersionMismatch.
func (s *Session) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      s.clientInfo,
	}

	resp, err := s.roundTrip(ctx, MethodInitialize, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize: %w", resp.Error)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("initialize: %w: %v", ErrMalformed, err)
	}

	if result.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("%w: server speaks %q, client speaks %q",
			ErrVersionMismatch, result.ProtocolVersion, ProtocolVersion)
	}

	s.mu.Lock()
	s.initialized = true
	s.serverInfo = result.ServerInfo
	s.mu.Unlock()

	s.logger.Info().
		Str("server_name", result.ServerInfo.Name).
		Str("server_version", result.ServerInfo.Version).
		Str("protocol_version", result.ProtocolVersion).
		Msg("Session initialized")

	notif, err := NewNotification(MethodInitialized, nil)
	if err != nil {
		return err
	}
	if err := s.transport.Send(notif); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// ServerInfo returns the server identity learned during the handshake.
func (s *Session) ServerInfo() Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// ListTools fetches the tool catalog and caches the snapshot. Calling
// it again performs an explicit re-discovery and replaces the cache.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.roundTrip(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %w", resp.Error)
	}

	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("tools/list: %w: %v", ErrMalformed, err)
	}

	s.mu.Lock()
	s.tools = result.Tools
	s.mu.Unlock()

	s.logger.Info().Int("count", len(result.Tools)).Msg("Discovered tools")
	return result.Tools, nil
}

// Tools returns the cached catalog snapshot from the last discovery.
func (s *Session) Tools() []ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolDescriptor, len(s.tools))
	copy(out, s.tools)
	return out
}

// Call invokes a tool and suspends until its result arrives, the
// per-call deadline elapses, or the transport closes. A tool-level
// failure is returned as a result with IsError set, never as a Go
// error; errors here are transport or protocol failures.
func (s *Session) Call(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return nil, fmt.Errorf("call %s: %w", name, ErrNotInitialized)
	}

	resp, err := s.roundTrip(ctx, MethodToolsCall, CallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, resp.Error)
	}

	var result ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("tools/call %s: %w: %v", name, ErrMalformed, err)
	}
	return &result, nil
}

// Shutdown cancels every still-pending request with ErrDisconnected
// and closes the underlying transport, terminating the server
// process. Safe to call more than once.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info().Msg("Shutting down session")
		s.failPending()
		s.shutdownErr = s.transport.Close()
	})
	return s.shutdownErr
}
