// Command kalku-calc is the calculator tool server. It speaks newline-framed
// JSON-RPC on stdin/stdout, so all logging goes to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halim/kalku/internal/logger"
	"github.com/halim/kalku/pkg/calculator"
	"github.com/halim/kalku/pkg/mcp"
	"github.com/halim/kalku/pkg/toolserver"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kalku-calc: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logg, err := logger.New(logger.Config{
		Level:         os.Getenv("KALKU_SERVER_LOG_LEVEL"),
		Console:       true,
		ConsoleWriter: os.Stderr,
	})
	if err != nil {
		return err
	}
	defer logg.Close()

	registry := toolserver.NewRegistry()
	if err := calculator.Register(registry); err != nil {
		return err
	}

	server := toolserver.NewServer(registry, mcp.Implementation{
		Name:    "kalku-calc",
		Version: version,
	}, logg.GetZerolog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, os.Stdin, os.Stdout)
}
