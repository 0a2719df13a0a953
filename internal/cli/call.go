package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var callArgs string

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a single tool and print its result",
	Long: `Invoke one tool on the calculator server without involving the
model, e.g.:

  kalku call add --args '{"a": 15, "b": 27}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	toolName := args[0]

	var arguments map[string]interface{}
	if err := json.Unmarshal([]byte(callArgs), &arguments); err != nil {
		return fmt.Errorf("invalid --args JSON: %w", err)
	}

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

	result, err := session.Call(ctx, toolName, arguments)
	if err != nil {
		return err
	}

	if result.IsError {
		return fmt.Errorf("tool error: %s", result.Text())
	}
	fmt.Println(result.Text())
	return nil
}
