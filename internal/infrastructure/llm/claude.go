package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

const claudeMaxTokens = 200

// ClaudeSummarizer summarizes articles through the Anthropic API.
type ClaudeSummarizer struct {
	apiKey string
	model  string
	logger *slog.Logger
}

var _ ports.Summarizer = (*ClaudeSummarizer)(nil)

// NewClaudeSummarizer builds the Claude-backed provider.
func NewClaudeSummarizer(apiKey, model string, logger *slog.Logger) *ClaudeSummarizer {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &ClaudeSummarizer{apiKey: apiKey, model: model, logger: logger}
}

// Summarize produces a short summary of one article.
func (c *ClaudeSummarizer) Summarize(ctx context.Context, article domain.Article) (domain.Summary, error) {
	if err := ctx.Err(); err != nil {
		return domain.Summary{}, err
	}

	userPrompt := buildUserPrompt(article.Title, article.Description)
	settings := types.RequestSettings{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
	}

	response, err := anthropic.PromptWithSettings(summarySystemPrompt, userPrompt, "", c.apiKey, settings)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("claude summarize %s: %w", article.Link, err)
	}
	if len(response.Content) == 0 {
		return domain.Summary{}, fmt.Errorf("claude summarize %s: empty response", article.Link)
	}

	text := strings.TrimSpace(response.Content[0].Text)
	if text == "" {
		return domain.Summary{}, fmt.Errorf("claude summarize %s: blank summary", article.Link)
	}

	if c.logger != nil {
		c.logger.Debug("claude summary complete", "article_url", article.Link, "model", c.model)
	}

	return domain.Summary{
		ArticleURL:  article.Link,
		Text:        text,
		Source:      article.Source,
		Provider:    ProviderClaude,
		TokensUsed:  estimateTokens(summarySystemPrompt+userPrompt) + estimateTokens(text),
		PublishedAt: article.PublishedAt,
	}, nil
}
