package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"WeeklyDigest/internal/ports"
)

// Provider names, in detection priority order.
const (
	ProviderClaude = "claude"
	ProviderOllama = "ollama"
)

// Config selects and configures a summarizer provider. An empty Provider
// auto-detects: Claude when an API key is present, otherwise Ollama when a
// base URL is present.
type Config struct {
	Provider        string
	AnthropicAPIKey string
	ClaudeModel     string
	OllamaBaseURL   string
	OllamaModel     string
}

// New resolves the provider and builds the matching summarizer.
func New(cfg Config, logger *slog.Logger) (ports.Summarizer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		detected, err := detectProvider(cfg)
		if err != nil {
			return nil, err
		}
		provider = detected
	}

	switch provider {
	case ProviderClaude:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("claude provider selected but no API key configured")
		}
		return NewClaudeSummarizer(cfg.AnthropicAPIKey, cfg.ClaudeModel, logger), nil
	case ProviderOllama:
		if cfg.OllamaBaseURL == "" {
			return nil, fmt.Errorf("ollama provider selected but no base URL configured")
		}
		return NewOllamaSummarizer(cfg.OllamaBaseURL, cfg.OllamaModel, logger), nil
	}
	return nil, fmt.Errorf("unknown summarizer provider %q", provider)
}

// detectProvider is an ordered capability check over the configuration.
func detectProvider(cfg Config) (string, error) {
	if cfg.AnthropicAPIKey != "" {
		return ProviderClaude, nil
	}
	if cfg.OllamaBaseURL != "" {
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("no summarizer provider configured: set an Anthropic API key or an Ollama base URL")
}

const summarySystemPrompt = `You are a tech news summarizer. Summarize the given article in 1-3 concise sentences, focusing on:
- The main technical development or news
- Why it matters to the tech/AI community
- Key facts or metrics (if any)

Provide only the summary, no preamble or explanation.`

func buildUserPrompt(title, description string) string {
	prompt := "Title: " + title
	if description != "" {
		prompt += "\nDescription: " + description
	}
	return prompt
}

// estimateTokens approximates cost at ~4 characters per token.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
