package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

// OllamaSummarizer summarizes articles through a local Ollama instance.
type OllamaSummarizer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Summarizer = (*OllamaSummarizer)(nil)

// NewOllamaSummarizer builds the Ollama-backed provider.
func NewOllamaSummarizer(baseURL, model string, logger *slog.Logger) *OllamaSummarizer {
	if model == "" {
		model = "llama3.2:latest"
	}
	return &OllamaSummarizer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Summarize produces a short summary of one article.
func (o *OllamaSummarizer) Summarize(ctx context.Context, article domain.Article) (domain.Summary, error) {
	prompt := summarySystemPrompt + "\n\n" + buildUserPrompt(article.Title, article.Description)

	body, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("marshal ollama payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Summary{}, fmt.Errorf("ollama error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Summary{}, fmt.Errorf("decode ollama response: %w", err)
	}

	text := strings.TrimSpace(parsed.Response)
	if text == "" {
		return domain.Summary{}, fmt.Errorf("ollama summarize %s: blank summary", article.Link)
	}

	if o.logger != nil {
		o.logger.Debug("ollama summary complete", "article_url", article.Link, "model", o.model)
	}

	return domain.Summary{
		ArticleURL:  article.Link,
		Text:        text,
		Source:      article.Source,
		Provider:    ProviderOllama,
		TokensUsed:  estimateTokens(prompt) + estimateTokens(text),
		PublishedAt: article.PublishedAt,
	}, nil
}
