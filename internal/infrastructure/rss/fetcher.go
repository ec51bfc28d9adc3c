package rss

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

// FeedSource implements ports.ArticleSource over RSS/Atom feeds. A failing
// source is logged and skipped; it never fails the whole fetch.
type FeedSource struct {
	parser         *gofeed.Parser
	perSourceLimit int
	logger         *slog.Logger
	now            func() time.Time
}

var _ ports.ArticleSource = (*FeedSource)(nil)

// NewFeedSource builds a source capped at perSourceLimit items per feed.
func NewFeedSource(perSourceLimit int, logger *slog.Logger) *FeedSource {
	if perSourceLimit <= 0 {
		perSourceLimit = 5
	}
	return &FeedSource{
		parser:         gofeed.NewParser(),
		perSourceLimit: perSourceLimit,
		logger:         logger,
		now:            time.Now,
	}
}

// Fetch aggregates normalized articles across all configured feeds, ordered
// most-recent-first. No reachable source yields an empty slice, not an error.
func (f *FeedSource) Fetch(ctx context.Context, sources []string) ([]domain.Article, error) {
	if len(sources) == 0 {
		f.debug("fetch called with no sources")
		return []domain.Article{}, nil
	}

	var aggregated []domain.Article
	for _, source := range sources {
		feed, err := f.parser.ParseURLWithContext(source, ctx)
		if err != nil {
			f.warn("feed fetch failed", "source", source, "error", err)
			continue
		}

		count := min(len(feed.Items), f.perSourceLimit)
		for _, item := range feed.Items[:count] {
			aggregated = append(aggregated, f.normalize(item, source))
		}
		f.debug("feed fetched", "source", source, "articles", count)
	}

	sort.SliceStable(aggregated, func(i, j int) bool {
		return aggregated[i].PublishedAt.After(aggregated[j].PublishedAt)
	})

	f.debug("fetch completed", "sources", len(sources), "total_articles", len(aggregated))
	return aggregated, nil
}

func (f *FeedSource) normalize(item *gofeed.Item, sourceURL string) domain.Article {
	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	publishedAt := f.now()
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
	}

	return domain.Article{
		Title:       title,
		Link:        item.Link,
		Source:      ExtractDomain(sourceURL),
		Description: item.Description,
		PublishedAt: publishedAt,
	}
}

// ExtractDomain reduces a URL to its bare domain, dropping any www. prefix.
func ExtractDomain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

func (f *FeedSource) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *FeedSource) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
