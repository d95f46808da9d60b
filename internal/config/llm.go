package config

// LLMConfig configures the LLM transport and structured-output client.
type LLMConfig struct {
	// Provider selects the transport adapter: "ollama" or "openai".
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the LLM endpoint, e.g. "http://localhost:11434".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey is sent as a bearer token by the openai adapter. Ollama ignores it.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model is the primary model id.
	Model string `yaml:"model" json:"model"`

	// FallbackModel is tried once when the primary fails with a
	// fallback-worthy error (model not found, unrepairable output).
	FallbackModel string `yaml:"fallback_model" json:"fallback_model"`

	// TimeoutMS is the per-call deadline. The repair retry runs under the
	// remaining portion of this deadline, not a fresh one.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`

	// HealthCheckTimeoutMS bounds the endpoint probe used by callers.
	HealthCheckTimeoutMS int `yaml:"health_check_timeout_ms" json:"health_check_timeout_ms"`

	// Temperature defaults to 0 for deterministic structured output.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// MaxAttempts bounds the generate+repair loop. Capped at 2.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// EnableAutoRepair toggles the repair retry on extraction or validation
	// failure.
	EnableAutoRepair bool `yaml:"enable_auto_repair" json:"enable_auto_repair"`
}

// DefaultLLMConfig returns sensible defaults for a local Ollama endpoint.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:             "ollama",
		BaseURL:              "http://localhost:11434",
		Model:                "llama3.1",
		TimeoutMS:            60000,
		HealthCheckTimeoutMS: 2000,
		Temperature:          0,
		MaxAttempts:          2,
		EnableAutoRepair:     true,
	}
}
