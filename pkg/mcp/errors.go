package mcp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Transport failures are
// fatal to the session; malformed frames and call timeouts are not.
var (
	// ErrWriteFailed reports a failed write to the child's stdin.
	ErrWriteFailed = errors.New("mcp: transport write failed")

	// ErrDisconnected reports that the child process closed its side
	// of the channel. Every pending call resolves with this error.
	ErrDisconnected = errors.New("mcp: transport disconnected")

	// ErrMalformed reports a frame that could not be decoded. The
	// connection stays usable; only the offending frame is lost.
	ErrMalformed = errors.New("mcp: malformed frame")

	// ErrVersionMismatch reports an incompatible protocol version
	// during the initialize handshake.
	ErrVersionMismatch = errors.New("mcp: protocol version mismatch")

	// ErrCallTimeout reports that a single call's deadline elapsed.
	// Other pending calls are unaffected.
	ErrCallTimeout = errors.New("mcp: tool call timed out")

	// ErrNotInitialized reports a tool call issued before the
	// handshake completed.
	ErrNotInitialized = errors.New("mcp: session not initialized")
)

// SpawnError reports that the server executable could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("mcp: spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
