package llm

import (
	"fmt"
	"strings"
	"time"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ProviderConfig holds the parameters needed to create a Client.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type ProviderConfig struct {
	// Provider is the provider name (openai, deepseek, anthropic, gemini).
	Provider string
	// APIKey is the provider credential.
	APIKey string
	// Model is the model identifier. Empty uses the provider default.
	Model string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Temperature is the default sampling temperature.
	Temperature float64
	// Timeout is the timeout for a single API call.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int
}

// NewClient creates a Client for the configured provider. Returns an error for
// unsupported or empty provider values and for a missing API key.
func NewClient(cfg ProviderConfig) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", provider)
	}

	switch provider {
	case ProviderOpenAI, ProviderDeepSeek:
		return NewOpenAIProvider(OpenAIConfig{
			Name:    provider,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case ProviderGemini:
		return NewGeminiProvider(GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
