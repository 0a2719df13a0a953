package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed by the calculator server",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logg, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logg.Close()

	ctx := cmd.Context()
	session, err := connect(ctx, cfg, logg.GetZerolog())
	if err != nil {
		return err
	}
	defer session.Shutdown()

	info := session.ServerInfo()
	fmt.Printf("Server: %s %s\n\n", info.Name, info.Version)

	for _, tool := range session.Tools() {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("render schema for %s: %w", tool.Name, err)
		}
		fmt.Printf("%s: %s\n  schema: %s\n", tool.Name, tool.Description, schema)
	}
	return nil
}
