package mcp

// Transport is a bidirectional framed message channel. The stdio
// implementation carries frames over a child process's pipes; other
// carriers (sockets, HTTP) can satisfy the same contract.
type Transport interface {
	// Send serializes and writes one message as a single frame.
	// Concurrent sends never interleave. A closed channel yields an
	// error wrapping ErrWriteFailed.
	Send(msg interface{}) error

	// Frames returns the incoming frame stream. The channel is closed
	// when the peer's output closes (EOF); closure is how the end of
	// the stream is signalled, never a frame-shaped value.
	Frames() <-chan []byte

	// Close tears the channel down and releases its resources. For a
	// child-process transport this terminates the process. Idempotent.
	Close() error
}
