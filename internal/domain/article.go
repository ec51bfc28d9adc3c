package domain

import "time"

// Article is a normalized feed entry produced by an article source.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Summary is the per-article output of a summarizer provider.
type Summary struct {
	ArticleURL  string    `json:"article_url"`
	Text        string    `json:"summary"`
	Source      string    `json:"source"`
	Provider    string    `json:"provider"`
	TokensUsed  int       `json:"tokens_used"`
	PublishedAt time.Time `json:"published_at"`
}
