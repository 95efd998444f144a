package config

// Config is the root configuration for the Quill assistant service.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Agents   AgentsConfig   `yaml:"agents,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Research ResearchConfig `yaml:"research,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProviderConfig selects and configures the generation provider.
type ProviderConfig struct {
	Name     string `yaml:"name,omitempty"` // "claude" | "ollama"
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"` // custom endpoint (for Ollama)
}

// AgentsConfig defines per-agent settings and shared defaults.
type AgentsConfig struct {
	Defaults  AgentDefaults `yaml:"defaults,omitempty"`
	Writing   AgentEntry    `yaml:"writing,omitempty"`
	Research  AgentEntry    `yaml:"research,omitempty"`
	Captioner AgentEntry    `yaml:"captioner,omitempty"`
}

// AgentDefaults defines default settings for all agents.
type AgentDefaults struct {
	Model          string   `yaml:"model,omitempty"`
	MaxTokens      int      `yaml:"maxTokens,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"` // bound on one generation or tool round-trip
}

// AgentEntry configures a single agent.
type AgentEntry struct {
	Instructions string   `yaml:"instructions,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
}

// StorageConfig controls the audit-trail database.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite file path; empty = <data dir>/quill.db
}

// ResearchConfig configures the web-research tool pool.
type ResearchConfig struct {
	PoolSize            int    `yaml:"poolSize,omitempty"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds,omitempty"`
	MaxContentChars     int    `yaml:"maxContentChars,omitempty"`
	UserAgent           string `yaml:"userAgent,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File  string `yaml:"file,omitempty"`
}
