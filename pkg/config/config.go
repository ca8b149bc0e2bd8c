// Package config loads and validates process configuration: a YAML file
// layered over built-in defaults, with environment-variable expansion and
// eager validation at startup.
package config

// Config is the umbrella configuration object returned by Initialize() and
// used throughout the application.
type Config struct {
	configDir string // configuration directory path (for reference)

	Window    WindowConfig
	Memory    MemoryConfig
	LLM       LLMConfig
	APIServer APIServerConfig
	Storage   StorageConfig
	Channel   ChannelConfig
}

// WindowConfig controls the sliding-window turn pipeline.
type WindowConfig struct {
	WindowSize          int  `yaml:"window_size" validate:"min=1"`
	ProcessingDelay     int  `yaml:"processing_delay" validate:"min=0"`
	EnableEnhancedAgent bool `yaml:"enable_enhanced_agent"`
}

// MemoryConfig controls SessionMemory behavior.
type MemoryConfig struct {
	HotMemorySize int `yaml:"hot_memory_size" validate:"min=1"`
}

// LLMConfig configures the single LLM provider used by LLMGateway.
type LLMConfig struct {
	APIKeyEnv             string  `yaml:"api_key_env"`
	BaseURL               string  `yaml:"base_url"`
	Model                 string  `yaml:"model" validate:"required"`
	MaxTokens             int     `yaml:"max_tokens" validate:"min=1"`
	Temperature           float64 `yaml:"temperature"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds" validate:"min=1"`
}

// APIServerConfig configures the HTTP listener.
type APIServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

// StorageConfig configures where per-character/session state lives on disk.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// ChannelConfig configures the plugin socket surface.
type ChannelConfig struct {
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" validate:"min=1"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
