package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config drives NewClient's provider selection, taken directly from the
// LLM_* environment family (config.Config).
type Config struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	MaxRetries   int
	StreamStrict bool
}

func NewClient(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.BaseURL) != "" {
			return NewHTTPClient(toHTTPConfig(cfg)), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("LLM_BASE_URL is required for the http provider")
		}
		return NewHTTPClient(toHTTPConfig(cfg)), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func toHTTPConfig(cfg Config) HTTPConfig {
	return HTTPConfig{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		StreamStrict: cfg.StreamStrict,
	}
}
