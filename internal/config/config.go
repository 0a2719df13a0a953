// Package config loads and validates kalku configuration. The model
// API key is resolved once here and threaded into the provider
// constructor; nothing else reads the environment at point of use.
package config

import "time"

// Config is the root configuration.
type Config struct {
	// AI selects and tunes the model provider.
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Server locates the tool server executable.
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Agent tunes the conversation loop.
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging configures log output.
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// AIConfig holds model provider settings.
type AIConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	Model        string  `json:"model" mapstructure:"model"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// ServerConfig holds tool server process settings.
type ServerConfig struct {
	Command     string        `json:"command" mapstructure:"command"`
	Args        []string      `json:"args" mapstructure:"args"`
	Env         []string      `json:"env" mapstructure:"env"`
	CallTimeout time.Duration `json:"call_timeout" mapstructure:"call_timeout"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	// MaxRounds caps model/tool round trips per user turn.
	MaxRounds int `json:"max_rounds" mapstructure:"max_rounds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:     "anthropic",
			Model:        "claude-3-5-sonnet-20241022",
			MaxTokens:    1024,
			SystemPrompt: "You are a helpful assistant with access to calculator tools.",
		},
		Server: ServerConfig{
			Command:     "kalku-calc",
			CallTimeout: 30 * time.Second,
		},
		Agent: AgentConfig{
			MaxRounds: 10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}
