package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/halim/kalku/internal/config"
	"github.com/halim/kalku/pkg/mcp"
)

// connect spawns the tool server, performs the handshake, and runs
// tool discovery. Callers own the returned session and must call
// Shutdown on every exit path.
func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*mcp.Session, error) {
	transport, err := mcp.SpawnStdio(mcp.StdioConfig{
		Command: cfg.Server.Command,
		Args:    cfg.Server.Args,
		Env:     cfg.Server.Env,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	session := mcp.NewSession(transport, mcp.SessionConfig{
		CallTimeout:   cfg.Server.CallTimeout,
		ClientName:    "kalku",
		ClientVersion: version,
		Logger:        log,
	})

	if err := session.Initialize(ctx); err != nil {
		session.Shutdown()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	if _, err := session.ListTools(ctx); err != nil {
		session.Shutdown()
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}

	return session, nil
}
