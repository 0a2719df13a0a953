// Command kalku is the calculator agent client. It spawns the tool server,
// wires it to a model provider, and exposes chat, tools, and call commands.
package main

import (
	"os"

	"github.com/halim/kalku/internal/cli"
)

func main() {
	// cobra already printed the error; only the exit status is ours.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
