// Package config loads and validates the Quill YAML configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 18990,
			Bind: "loopback",
		},
		Provider: ProviderConfig{
			Name: "ollama",
		},
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				MaxTokens:      4096,
				TimeoutSeconds: 120,
			},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Research: ResearchConfig{
			PoolSize:            2,
			FetchTimeoutSeconds: 30,
			MaxContentChars:     6000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills zero-valued fields after YAML unmarshal.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = d.Server.Bind
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = d.Provider.Name
	}
	if cfg.Agents.Defaults.MaxTokens == 0 {
		cfg.Agents.Defaults.MaxTokens = d.Agents.Defaults.MaxTokens
	}
	if cfg.Agents.Defaults.TimeoutSeconds == 0 {
		cfg.Agents.Defaults.TimeoutSeconds = d.Agents.Defaults.TimeoutSeconds
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}
	if cfg.Research.PoolSize == 0 {
		cfg.Research.PoolSize = d.Research.PoolSize
	}
	if cfg.Research.FetchTimeoutSeconds == 0 {
		cfg.Research.FetchTimeoutSeconds = d.Research.FetchTimeoutSeconds
	}
	if cfg.Research.MaxContentChars == 0 {
		cfg.Research.MaxContentChars = d.Research.MaxContentChars
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
}
