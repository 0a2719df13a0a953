package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks everything the chat command needs before any
// process is spawned or network call made.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateProvider(cfg.AI.Provider); err != nil {
		return err
	}
	if err := v.ValidateAPIKey(cfg.AI.APIKey, cfg.AI.Provider); err != nil {
		return err
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if cfg.Server.Command == "" {
		return fmt.Errorf("server command cannot be empty")
	}
	if cfg.Agent.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be at least 1")
	}
	if cfg.Server.CallTimeout < 0 {
		return fmt.Errorf("call timeout cannot be negative")
	}
	return nil
}

// ValidateProvider checks the provider name.
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "anthropic", "openai":
		return nil
	default:
		return fmt.Errorf("unsupported provider: %s", provider)
	}
}

// ValidateAPIKey validates an API key format.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty (set KALKU_API_KEY)", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}
	return nil
}
