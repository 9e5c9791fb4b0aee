package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by NewFromConfig.
const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
	ProviderLocalAI  = "localai"
	ProviderRaw      = "raw"
	ProviderOffline  = "offline"
)

// Config selects and tunes a model backend
type Config struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
	Temperature    float64       `yaml:"temperature"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// NewFromConfig builds an adapter wrapped with classified retries
func NewFromConfig(cfg Config, logger *zap.Logger) (Adapter, error) {
	var base Adapter

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		base = NewGenericProvider(GenericConfig{
			Name:      ProviderOpenAI,
			Model:     cfg.Model,
			BaseURL:   orDefault(cfg.BaseURL, "https://api.openai.com/v1"),
			APIKey:    cfg.APIKey,
			Format:    FormatOpenAI,
			MaxTokens: cfg.MaxTokens,
		}, logger)

	case ProviderOllama:
		base = NewGenericProvider(GenericConfig{
			Name:    ProviderOllama,
			Model:   orDefault(cfg.Model, "qwen2.5-coder:14b"),
			BaseURL: orDefault(cfg.BaseURL, "http://localhost:11434"),
			Format:  FormatOllama,
		}, logger)

	case ProviderLMStudio:
		base = NewGenericProvider(GenericConfig{
			Name:      ProviderLMStudio,
			Model:     orDefault(cfg.Model, "local-model"),
			BaseURL:   orDefault(cfg.BaseURL, "http://localhost:1234/v1"),
			Format:    FormatOpenAI,
			MaxTokens: cfg.MaxTokens,
		}, logger)

	case ProviderLocalAI:
		base = NewGenericProvider(GenericConfig{
			Name:      ProviderLocalAI,
			Model:     cfg.Model,
			BaseURL:   orDefault(cfg.BaseURL, "http://localhost:8080/v1"),
			APIKey:    cfg.APIKey,
			Format:    FormatOpenAI,
			MaxTokens: cfg.MaxTokens,
		}, logger)

	case ProviderRaw:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("raw provider requires a base URL")
		}
		base = NewGenericProvider(GenericConfig{
			Name:    ProviderRaw,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Format:  FormatRaw,
		}, logger)

	case ProviderOffline:
		return Offline{}, nil

	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}

	return WithRetry(base, RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialBackoff,
	}, logger), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
