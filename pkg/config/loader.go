package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete memoryd.yaml file structure. Every
// section is optional; omitted sections fall back to Default() entirely.
type YAMLConfig struct {
	Window    *WindowConfig    `yaml:"sliding_window"`
	Memory    *MemoryConfig    `yaml:"memory"`
	LLM       *LLMConfig       `yaml:"llm"`
	APIServer *APIServerConfig `yaml:"api_server"`
	Storage   *StorageConfig   `yaml:"storage"`
	Channel   *ChannelConfig   `yaml:"channel"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load memoryd.yaml from configDir (missing file is not an error; built-in
//     defaults apply).
//  2. Expand environment variables.
//  3. Merge user-defined fields over built-in defaults.
//  4. Validate all configuration.
//  5. Return Config ready for use.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized successfully",
		"window_size", cfg.Window.WindowSize,
		"processing_delay", cfg.Window.ProcessingDelay,
		"llm_model", cfg.LLM.Model,
		"api_port", cfg.APIServer.Port)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadYAMLConfig()
	if err != nil {
		return nil, NewLoadError("memoryd.yaml", err)
	}

	merged := Default()

	if yamlCfg.Window != nil {
		if err := mergo.Merge(&merged.Window, yamlCfg.Window, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge sliding_window config: %w", err)
		}
	}
	if yamlCfg.Memory != nil {
		if err := mergo.Merge(&merged.Memory, yamlCfg.Memory, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge memory config: %w", err)
		}
	}
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(&merged.LLM, yamlCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}
	if yamlCfg.APIServer != nil {
		if err := mergo.Merge(&merged.APIServer, yamlCfg.APIServer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge api_server config: %w", err)
		}
	}
	if yamlCfg.Storage != nil {
		if err := mergo.Merge(&merged.Storage, yamlCfg.Storage, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}
	if yamlCfg.Channel != nil {
		if err := mergo.Merge(&merged.Channel, yamlCfg.Channel, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge channel config: %w", err)
		}
	}

	merged.configDir = configDir
	return &merged, nil
}

func validate(cfg *Config) error {
	v := NewValidator(cfg)
	return v.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Absence of the file is acceptable: built-in defaults apply.
			return nil
		}
		return err
	}

	// Note: ExpandEnv cannot fail; unset variables expand to the empty
	// string, and any malformed content is left for the YAML parser to
	// report.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadYAMLConfig() (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := l.loadYAML("memoryd.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
