package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Tests either install an
// auto-responder or push frames by hand to exercise ordering and
// failure paths.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []json.RawMessage
	sendErr error
	respond func(req *Request) *Response

	frames    chan []byte
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 16)}
}

func (f *fakeTransport) Send(msg interface{}) error {
	f.mu.Lock()
	sendErr := f.sendErr
	respond := f.respond
	data, err := json.Marshal(msg)
	if err == nil {
		f.sent = append(f.sent, data)
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}

	if respond != nil {
		if req, ok := msg.(*Request); ok {
			if resp := respond(req); resp != nil {
				f.push(resp)
			}
		}
	}
	return nil
}

func (f *fakeTransport) Frames() <-chan []byte {
	return f.frames
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeTransport) push(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	f.frames <- data
}

func (f *fakeTransport) pushRaw(frame string) {
	f.frames <- []byte(frame)
}

// sentRequests decodes every sent frame that carries a request id.
func (f *fakeTransport) sentRequests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reqs []Request
	for _, data := range f.sent {
		var probe struct {
			ID *int64 `json:"id"`
		}
		if json.Unmarshal(data, &probe) != nil || probe.ID == nil {
			continue
		}
		var req Request
		if json.Unmarshal(data, &req) == nil {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// sentNotifications decodes every sent frame without an id.
func (f *fakeTransport) sentNotifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	var notifs []Notification
	for _, data := range f.sent {
		var probe struct {
			ID *int64 `json:"id"`
		}
		if json.Unmarshal(data, &probe) != nil || probe.ID != nil {
			continue
		}
		var notif Notification
		if json.Unmarshal(data, &notif) == nil {
			notifs = append(notifs, notif)
		}
	}
	return notifs
}

func initResponder(t *testing.T, tools []ToolDescriptor) func(*Request) *Response {
	t.Helper()
	return func(req *Request) *Response {
		switch req.Method {
		case MethodInitialize:
			resp, err := NewResponse(req.ID, InitializeResult{
				ProtocolVersion: ProtocolVersion,
				Capabilities:    ServerCapabilities{Tools: &struct{}{}},
				ServerInfo:      Implementation{Name: "fake-server", Version: "0.0.1"},
			})
			require.NoError(t, err)
			return resp
		case MethodToolsList:
			resp, err := NewResponse(req.ID, ListToolsResult{Tools: tools})
			require.NoError(t, err)
			return resp
		default:
			return nil
		}
	}
}

func newTestSession(transport Transport, timeout time.Duration) *Session {
	return NewSession(transport, SessionConfig{
		CallTimeout:   timeout,
		ClientName:    "test-client",
		ClientVersion: "0.0.1",
		Logger:        zerolog.Nop(),
	})
}

func TestSessionLogsCarrySessionID(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	var logOut bytes.Buffer
	session := NewSession(transport, SessionConfig{
		CallTimeout: time.Second,
		Logger:      zerolog.New(&logOut),
	})
	defer session.Shutdown()

	require.NotEmpty(t, session.ID())
	require.NoError(t, session.Initialize(context.Background()))

	assert.Contains(t, logOut.String(), session.ID())
}

func TestSessionInitialize(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()

	err := session.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-server", session.ServerInfo().Name)

	notifs := transport.sentNotifications()
	require.Len(t, notifs, 1)
	assert.Equal(t, MethodInitialized, notifs[0].Method)
}

func TestSessionInitializeVersionMismatch(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = func(req *Request) *Response {
		resp, err := NewResponse(req.ID, InitializeResult{
			ProtocolVersion: "1999-01-01",
			ServerInfo:      Implementation{Name: "old-server"},
		})
		require.NoError(t, err)
		return resp
	}

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()

	err := session.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.Contains(t, err.Error(), "1999-01-01")

	// The handshake failed, so the session must refuse tool calls.
	_, err = session.Call(context.Background(), "add", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSessionCallBeforeInitialize(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(transport, time.Second)
	defer session.Shutdown()

	_, err := session.Call(context.Background(), "add", map[string]interface{}{"a": 1.0, "b": 2.0})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSessionListTools(t *testing.T) {
	tools := []ToolDescriptor{
		{Name: "add", Description: "Add two numbers"},
		{Name: "sqrt", Description: "Square root"},
	}
	transport := newFakeTransport()
	transport.respond = initResponder(t, tools)

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()

	require.NoError(t, session.Initialize(context.Background()))

	listed, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "add", listed[0].Name)
	assert.Equal(t, "sqrt", listed[1].Name)

	// The cached snapshot is a copy, not the internal slice.
	cached := session.Tools()
	require.Len(t, cached, 2)
	cached[0].Name = "mutated"
	assert.Equal(t, "add", session.Tools()[0].Name)
}

func TestSessionCall(t *testing.T) {
	transport := newFakeTransport()
	responder := initResponder(t, nil)
	transport.respond = func(req *Request) *Response {
		if req.Method == MethodToolsCall {
			resp, err := NewResponse(req.ID, ToolResult{
				Content: []ContentBlock{TextContent("42")},
			})
			require.NoError(t, err)
			return resp
		}
		return responder(req)
	}

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	result, err := session.Call(context.Background(), "add", map[string]interface{}{"a": 15.0, "b": 27.0})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "42", result.Text())
}

func TestSessionCallToolError(t *testing.T) {
	transport := newFakeTransport()
	responder := initResponder(t, nil)
	transport.respond = func(req *Request) *Response {
		if req.Method == MethodToolsCall {
			resp, err := NewResponse(req.ID, ToolResult{
				Content: []ContentBlock{TextContent("division by zero is not allowed")},
				IsError: true,
			})
			require.NoError(t, err)
			return resp
		}
		return responder(req)
	}

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	result, err := session.Call(context.Background(), "divide", map[string]interface{}{"a": 1.0, "b": 0.0})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text(), "division by zero")
}

func TestSessionCallTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, 50*time.Millisecond)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	// No auto-response for tools/call, so the deadline fires.
	transport.mu.Lock()
	responder := transport.respond
	transport.respond = func(req *Request) *Response {
		if req.Method == MethodToolsCall {
			return nil
		}
		return responder(req)
	}
	transport.mu.Unlock()

	start := time.Now()
	_, err := session.Call(context.Background(), "add", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSessionContextCancellation(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Minute)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	transport.mu.Lock()
	responder := transport.respond
	transport.respond = func(req *Request) *Response {
		if req.Method == MethodToolsCall {
			return nil
		}
		return responder(req)
	}
	transport.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := session.Call(ctx, "add", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionDisconnectFailsPending(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Minute)
	require.NoError(t, session.Initialize(context.Background()))

	transport.mu.Lock()
	transport.respond = nil
	transport.mu.Unlock()

	const callers = 3
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := session.Call(context.Background(), "add", nil)
			errCh <- err
		}()
	}

	// Let every call register before the transport dies.
	require.Eventually(t, func() bool {
		return len(transport.sentRequests()) >= callers+1
	}, time.Second, 5*time.Millisecond)

	transport.Close()

	for i := 0; i < callers; i++ {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrDisconnected)
		case <-time.After(time.Second):
			t.Fatal("pending call did not resolve after disconnect")
		}
	}
}

func TestSessionOutOfOrderResponses(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Minute)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	transport.mu.Lock()
	transport.respond = nil
	transport.mu.Unlock()

	type outcome struct {
		text string
		err  error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		result, err := session.Call(context.Background(), "slow", nil)
		if err != nil {
			first <- outcome{err: err}
			return
		}
		first <- outcome{text: result.Text()}
	}()

	require.Eventually(t, func() bool {
		return len(transport.sentRequests()) >= 2
	}, time.Second, 5*time.Millisecond)

	go func() {
		result, err := session.Call(context.Background(), "fast", nil)
		if err != nil {
			second <- outcome{err: err}
			return
		}
		second <- outcome{text: result.Text()}
	}()

	require.Eventually(t, func() bool {
		return len(transport.sentRequests()) >= 3
	}, time.Second, 5*time.Millisecond)

	reqs := transport.sentRequests()
	slowID := reqs[1].ID
	fastID := reqs[2].ID

	// The second request completes first; each caller still gets its
	// own result.
	fastResp, err := NewResponse(fastID, ToolResult{Content: []ContentBlock{TextContent("fast result")}})
	require.NoError(t, err)
	transport.push(fastResp)

	slowResp, err := NewResponse(slowID, ToolResult{Content: []ContentBlock{TextContent("slow result")}})
	require.NoError(t, err)
	transport.push(slowResp)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "fast result", got.text)

	got = <-first
	require.NoError(t, got.err)
	assert.Equal(t, "slow result", got.text)
}

func TestSessionDropsUnknownAndMalformedFrames(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Minute)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	transport.mu.Lock()
	transport.respond = nil
	transport.mu.Unlock()

	done := make(chan *ToolResult, 1)
	go func() {
		result, err := session.Call(context.Background(), "add", nil)
		require.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool {
		return len(transport.sentRequests()) >= 2
	}, time.Second, 5*time.Millisecond)
	callID := transport.sentRequests()[1].ID

	// Noise first: a malformed frame, a server notification, and a
	// response with an id nobody is waiting on.
	transport.pushRaw("{not json")
	notif, err := NewNotification("notifications/progress", nil)
	require.NoError(t, err)
	transport.push(notif)
	orphan, err := NewResponse(callID+1000, ToolResult{})
	require.NoError(t, err)
	transport.push(orphan)

	reply, err := NewResponse(callID, ToolResult{Content: []ContentBlock{TextContent("ok")}})
	require.NoError(t, err)
	transport.push(reply)

	select {
	case result := <-done:
		assert.Equal(t, "ok", result.Text())
	case <-time.After(time.Second):
		t.Fatal("call did not resolve")
	}
}

func TestSessionRequestIDsAreUnique(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := session.ListTools(context.Background())
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	for _, req := range transport.sentRequests() {
		assert.False(t, seen[req.ID], "request id %d reused", req.ID)
		seen[req.ID] = true
	}
}

func TestSessionSendFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.respond = initResponder(t, nil)

	session := newTestSession(transport, time.Second)
	defer session.Shutdown()
	require.NoError(t, session.Initialize(context.Background()))

	transport.mu.Lock()
	transport.sendErr = ErrWriteFailed
	transport.mu.Unlock()

	_, err := session.Call(context.Background(), "add", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestSessionShutdownIdempotent(t *testing.T) {
	transport := newFakeTransport()
	session := newTestSession(transport, time.Second)

	require.NoError(t, session.Shutdown())
	require.NoError(t, session.Shutdown())

	_, err := session.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
}
