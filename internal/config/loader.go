package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a loader for the given path. An empty path falls
// back to ~/.kalku/kalku.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kalku", "kalku.json"), nil
}

// Load reads the configuration file, layering KALKU_* environment
// variables on top. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("KALKU")
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		applyEnvOverrides(v, cfg)
		return cfg, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, cfg)
	return cfg, nil
}

// applyEnvOverrides maps the credential and provider environment
// variables onto the config. The API key in particular is expected to
// arrive via KALKU_API_KEY rather than the file.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if key := v.GetString("API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if provider := v.GetString("PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if model := v.GetString("MODEL"); model != "" {
		cfg.AI.Model = model
	}
}

// Save writes the configuration back to the file.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("server", cfg.Server)
	v.Set("agent", cfg.Agent)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
