package config

// Default builds the built-in configuration used when the YAML file is
// silent on a given field. Every field here has a corresponding entry in
// spec §6.4; YAML values override these on a per-field basis in load()
// (loader.go).
func Default() Config {
	return Config{
		Window: WindowConfig{
			WindowSize:          4,
			ProcessingDelay:     1,
			EnableEnhancedAgent: true,
		},
		Memory: MemoryConfig{
			HotMemorySize: 10,
		},
		LLM: LLMConfig{
			APIKeyEnv:             "MEMORYD_LLM_API_KEY",
			Model:                 "gpt-4o-mini",
			MaxTokens:             1024,
			Temperature:           0.7,
			RequestTimeoutSeconds: 15,
		},
		APIServer: APIServerConfig{
			Port: 9543,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Channel: ChannelConfig{
			WriteTimeoutSeconds: 5,
		},
	}
}
