package config

import "fmt"

// Validator performs eager, fail-fast validation over a loaded Config so
// that misconfiguration is a startup error rather than a runtime surprise.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator bound to cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check and returns the first failure, wrapped as a
// *ValidationError so callers can report which field was at fault.
func (v *Validator) ValidateAll() error {
	checks := []func() error{
		v.validateWindow,
		v.validateMemory,
		v.validateLLM,
		v.validateAPIServer,
		v.validateStorage,
		v.validateChannel,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateWindow() error {
	w := v.cfg.Window
	if w.WindowSize < 1 {
		return NewValidationError("sliding_window.window_size", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if w.ProcessingDelay < 0 {
		return NewValidationError("sliding_window.processing_delay", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if w.ProcessingDelay >= w.WindowSize {
		return NewValidationError("sliding_window.processing_delay",
			fmt.Errorf("%w: must be less than window_size (%d)", ErrInvalidValue, w.WindowSize))
	}
	return nil
}

func (v *Validator) validateMemory() error {
	if v.cfg.Memory.HotMemorySize < 1 {
		return NewValidationError("memory.hot_memory_size", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.Model == "" {
		return NewValidationError("llm.model", ErrMissingRequiredField)
	}
	if l.MaxTokens < 1 {
		return NewValidationError("llm.max_tokens", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if l.RequestTimeoutSeconds < 1 {
		return NewValidationError("llm.request_timeout_seconds", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return NewValidationError("llm.temperature", fmt.Errorf("%w: must be within [0, 2]", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateAPIServer() error {
	p := v.cfg.APIServer.Port
	if p < 1 || p > 65535 {
		return NewValidationError("api_server.port", fmt.Errorf("%w: must be a valid TCP port", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateStorage() error {
	if v.cfg.Storage.DataDir == "" {
		return NewValidationError("storage.data_dir", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateChannel() error {
	if v.cfg.Channel.WriteTimeoutSeconds < 1 {
		return NewValidationError("channel.write_timeout_seconds", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	return nil
}
