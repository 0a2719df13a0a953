package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/halim/kalku/internal/config"
	"github.com/halim/kalku/pkg/agent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. The assistant answers arithmetic
questions by calling tools on the calculator server. Type 'quit' or
'exit' to stop.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logg, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logg.Close()
	log := logg.GetZerolog()

	provider, err := agent.NewProvider(agent.ProviderConfig{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Shutdown()

	sessionKey, _ := gonanoid.New()
	log.Info().
		Str("session_key", sessionKey).
		Str("provider", provider.Name()).
		Int("tools", len(session.Tools())).
		Msg("Chat session started")

	loop := agent.NewLoop(session, provider, agent.LoopConfig{
		Model:        cfg.AI.Model,
		SystemPrompt: cfg.AI.SystemPrompt,
		MaxTokens:    cfg.AI.MaxTokens,
		Temperature:  cfg.AI.Temperature,
		MaxRounds:    cfg.Agent.MaxRounds,
		Logger:       log,
	})

	fmt.Println("Kalku chat. Ask me to perform calculations; type 'quit' or 'exit' to stop.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			fmt.Println("Goodbye!")
			break
		}

		reply, err := loop.RunTurn(ctx, input)
		if err != nil {
			if errors.Is(err, agent.ErrLoopLimitExceeded) {
				fmt.Printf("Error: %v\n\n", err)
				continue
			}
			// Transport and protocol failures are fatal to the session.
			return err
		}
		fmt.Printf("Assistant: %s\n\n", reply)
	}

	return scanner.Err()
}
