package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// CandidateStatus is the recommendation for an evaluated feed.
type CandidateStatus string

const (
	CandidateApproved CandidateStatus = "approved"
	CandidateReview   CandidateStatus = "review"
	CandidateRejected CandidateStatus = "rejected"
)

// SourceCandidate is the evaluation verdict for one candidate feed URL.
type SourceCandidate struct {
	FeedURL      string          `json:"feed_url"`
	Domain       string          `json:"domain"`
	ArticleCount int             `json:"article_count"`
	Relevance    float64         `json:"relevance_score"`
	Frequency    float64         `json:"frequency_score"`
	Quality      float64         `json:"quality_score"`
	Score        float64         `json:"score"`
	Status       CandidateStatus `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
}

var defaultKeywords = []string{
	"ai", "artificial intelligence", "machine learning", "llm", "software",
	"cloud", "security", "startup", "developer", "data", "open source",
	"chip", "robot", "tech",
}

// Discovery finds candidate feed URLs on HTML pages and scores them for
// inclusion in the configured source list.
type Discovery struct {
	client   *http.Client
	parser   *gofeed.Parser
	keywords []string
	logger   *slog.Logger
}

// NewDiscovery builds a discovery helper. A nil client gets a 10s timeout.
func NewDiscovery(client *http.Client, logger *slog.Logger) *Discovery {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discovery{
		client:   client,
		parser:   gofeed.NewParser(),
		keywords: defaultKeywords,
		logger:   logger,
	}
}

// DiscoverFeeds scans an HTML page for feed URLs: <link rel="alternate">
// declarations plus anchors that look like feed endpoints.
func (d *Discovery) DiscoverFeeds(ctx context.Context, pageURL string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page %s: %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	seen := map[string]bool{}
	var feeds []string
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" || len(feeds) >= limit {
			return
		}
		// Dedupe on the resolved form so a relative href and its
		// absolute counterpart count as one feed.
		resolved := resolveRef(pageURL, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		feeds = append(feeds, resolved)
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		feedType, _ := sel.Attr("type")
		if strings.Contains(feedType, "rss") || strings.Contains(feedType, "atom") {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		}
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if looksLikeFeed(href) {
			add(href)
		}
	})

	d.debug("feeds discovered", "page", pageURL, "count", len(feeds))
	return feeds, nil
}

// Evaluate fetches a candidate feed and scores it on topical relevance,
// posting frequency, and content depth.
func (d *Discovery) Evaluate(ctx context.Context, feedURL string) (SourceCandidate, error) {
	candidate := SourceCandidate{
		FeedURL:     feedURL,
		Domain:      ExtractDomain(feedURL),
		EvaluatedAt: time.Now().UTC(),
	}

	if !strings.HasPrefix(feedURL, "https://") {
		candidate.Status = CandidateRejected
		candidate.Reason = "feed is not served over HTTPS"
		return candidate, nil
	}

	feed, err := d.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return candidate, fmt.Errorf("parse candidate feed: %w", err)
	}

	items := feed.Items
	if len(items) > 20 {
		items = items[:20]
	}
	candidate.ArticleCount = len(items)
	if len(items) == 0 {
		candidate.Status = CandidateRejected
		candidate.Reason = "feed has no entries"
		return candidate, nil
	}

	candidate.Relevance = d.relevanceScore(items)
	candidate.Frequency = frequencyScore(items)
	candidate.Quality = qualityScore(items)
	candidate.Score = 0.5*candidate.Relevance + 0.2*candidate.Frequency + 0.3*candidate.Quality

	switch {
	case candidate.Score >= 0.7:
		candidate.Status = CandidateApproved
	case candidate.Score >= 0.4:
		candidate.Status = CandidateReview
		candidate.Reason = "borderline score, needs manual review"
	default:
		candidate.Status = CandidateRejected
		candidate.Reason = fmt.Sprintf("score %.2f below threshold", candidate.Score)
	}

	d.debug("candidate evaluated", "feed", feedURL, "score", candidate.Score, "status", candidate.Status)
	return candidate, nil
}

// relevanceScore is the share of entries mentioning any topical keyword.
func (d *Discovery) relevanceScore(items []*gofeed.Item) float64 {
	matched := 0
	for _, item := range items {
		text := strings.ToLower(item.Title + " " + item.Description)
		for _, keyword := range d.keywords {
			if strings.Contains(text, keyword) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(items))
}

// frequencyScore favors roughly 1-3 posts per day over a one-week window.
func frequencyScore(items []*gofeed.Item) float64 {
	perDay := float64(len(items)) / 7.0
	switch {
	case perDay >= 1.0 && perDay <= 3.0:
		return 1.0
	case perDay >= 0.5 && perDay <= 5.0:
		return 0.8
	case perDay < 0.5:
		return 0.3
	default:
		return 0.5
	}
}

// qualityScore rises with average title+description length.
func qualityScore(items []*gofeed.Item) float64 {
	total := 0
	for _, item := range items {
		total += len(item.Title) + len(item.Description)
	}
	avg := total / len(items)
	switch {
	case avg >= 500:
		return 1.0
	case avg >= 200:
		return 0.8
	case avg >= 100:
		return 0.6
	case avg >= 50:
		return 0.4
	default:
		return 0.2
	}
}

func looksLikeFeed(href string) bool {
	lower := strings.ToLower(href)
	for _, marker := range []string{"/feed", "/rss", "feed.xml", "rss.xml", "atom.xml"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func resolveRef(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := baseURL.Parse(href)
	if err != nil {
		return ""
	}
	return ref.String()
}

func (d *Discovery) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
