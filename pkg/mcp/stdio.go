package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// shutdownGrace is how long Close waits for the child to exit after
// its stdin closes before force-killing it.
const shutdownGrace = 5 * time.Second

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 4 << 20

// StdioConfig configures a child-process transport.
type StdioConfig struct {
	// Command is the server executable to spawn.
	Command string

	// Args are passed to the executable.
	Args []string

	// Env entries ("KEY=VALUE") are appended to the parent environment.
	Env []string

	// Logger receives transport diagnostics and the child's stderr.
	Logger zerolog.Logger
}

// StdioTransport exchanges newline-framed JSON messages with a child
// process over its stdin/stdout pipes and owns the process lifecycle.
type StdioTransport struct {
	logger zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// SpawnStdio starts the server process and wires its pipes as the
// message channel. A process that cannot be started yields *SpawnError.
func SpawnStdio(cfg StdioConfig) (*StdioTransport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}
	// Stderr is diagnostics only, never protocol traffic.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}

	t := &StdioTransport{
		logger: cfg.Logger.With().Str("component", "stdio_transport").Logger(),
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan []byte, 16),
	}

	t.logger.Info().
		Str("command", cfg.Command).
		Strs("args", cfg.Args).
		Int("pid", cmd.Process.Pid).
		Msg("Server process started")

	go t.readFrames(stdout)
	go t.drainStderr(stderr)

	return t, nil
}

// Send marshals one message and writes it as a single frame. The
// write mutex keeps concurrent frames from interleaving.
func (t *StdioTransport) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Frames returns the incoming frame channel. It is closed when the
// child's stdout reaches EOF.
func (t *StdioTransport) Frames() <-chan []byte {
	return t.frames
}

// readFrames drains the child's stdout into the frame channel.
// Partial lines are buffered by the scanner until the delimiter
// arrives. Runs until EOF or read error.
func (t *StdioTransport) readFrames(stdout io.Reader) {
	defer close(t.frames)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		t.frames <- frame
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debug().Err(err).Msg("Server stdout closed with error")
	}
}

// drainStderr logs the child's stderr lines.
func (t *StdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug().Str("line", scanner.Text()).Msg("Server stderr")
	}
}

// Close signals the child to terminate by closing its stdin, waits a
// bounded grace period, and force-kills if it is still running. Safe
// to call more than once; the child never outlives the transport.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.shutdown()
	})
	return t.closeErr
}

func (t *StdioTransport) shutdown() error {
	pid := t.cmd.Process.Pid
	t.logger.Info().Int("pid", pid).Msg("Stopping server process")

	t.writeMu.Lock()
	err := t.stdin.Close()
	t.writeMu.Unlock()
	if err != nil {
		t.logger.Debug().Err(err).Msg("Closing server stdin failed")
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			t.logger.Debug().Err(err).Int("pid", pid).Msg("Server process exited with error")
		}
		return nil
	case <-time.After(shutdownGrace):
		t.logger.Warn().Int("pid", pid).Msg("Server process did not exit, killing")
		_ = t.cmd.Process.Kill()
		<-done
		return nil
	}
}
