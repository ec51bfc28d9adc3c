package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func rssFeed(title string, items ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`)
	fmt.Fprintf(&b, "<title>%s</title>", title)
	b.WriteString(strings.Join(items, ""))
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func rssItem(title, link, pubDate string) string {
	return fmt.Sprintf(
		`<item><title>%s</title><link>%s</link><description>Details about %s.</description><pubDate>%s</pubDate></item>`,
		title, link, title, pubDate)
}

func TestFetchAggregatesAndOrders(t *testing.T) {
	t.Parallel()

	feedA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("Feed A",
			rssItem("Old story", "https://a.example/old", "Mon, 10 Nov 2025 08:00:00 GMT"),
			rssItem("Newest story", "https://a.example/new", "Wed, 12 Nov 2025 09:00:00 GMT"),
		))
	}))
	defer feedA.Close()

	feedB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("Feed B",
			rssItem("Middle story", "https://b.example/mid", "Tue, 11 Nov 2025 10:00:00 GMT"),
		))
	}))
	defer feedB.Close()

	source := NewFeedSource(5, nil)
	articles, err := source.Fetch(context.Background(), []string{feedA.URL, feedB.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	want := []string{"Newest story", "Middle story", "Old story"}
	for i, title := range want {
		if articles[i].Title != title {
			t.Fatalf("position %d: got %q, want %q", i, articles[i].Title, title)
		}
	}
	if !articles[0].PublishedAt.After(articles[2].PublishedAt) {
		t.Fatalf("articles not ordered most-recent-first")
	}
}

func TestFetchSkipsFailingSource(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("Healthy",
			rssItem("Only story", "https://h.example/1", "Mon, 10 Nov 2025 08:00:00 GMT"),
		))
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	source := NewFeedSource(5, nil)
	articles, err := source.Fetch(context.Background(), []string{broken.URL, healthy.URL})
	if err != nil {
		t.Fatalf("a failing source must not fail the fetch: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Only story" {
		t.Fatalf("expected the healthy source's article, got %+v", articles)
	}
}

func TestFetchPerSourceLimit(t *testing.T) {
	t.Parallel()

	items := make([]string, 8)
	for i := range items {
		items[i] = rssItem(fmt.Sprintf("Story %d", i+1),
			fmt.Sprintf("https://s.example/%d", i+1),
			"Mon, 10 Nov 2025 08:00:00 GMT")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("Busy feed", items...))
	}))
	defer server.Close()

	source := NewFeedSource(3, nil)
	articles, err := source.Fetch(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected per-source cap of 3, got %d", len(articles))
	}
}

func TestFetchNormalizesMissingFields(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed("Sparse feed",
			`<item><link>https://s.example/untitled</link><description>No title here.</description></item>`,
		))
	}))
	defer server.Close()

	fixed := time.Date(2025, 11, 14, 12, 0, 0, 0, time.UTC)
	source := NewFeedSource(5, nil)
	source.now = func() time.Time { return fixed }

	articles, err := source.Fetch(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(articles))
	}
	if articles[0].Title != "Untitled" {
		t.Fatalf("expected Untitled fallback, got %q", articles[0].Title)
	}
	if !articles[0].PublishedAt.Equal(fixed) {
		t.Fatalf("expected fetch-time fallback date, got %s", articles[0].PublishedAt)
	}
}

func TestFetchNoSources(t *testing.T) {
	t.Parallel()

	source := NewFeedSource(5, nil)
	articles, err := source.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch with no sources must not error: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("expected no articles, got %d", len(articles))
	}
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"https://www.theverge.com/rss/index.xml", "theverge.com"},
		{"https://techcrunch.com/feed/", "techcrunch.com"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := ExtractDomain(tt.in); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
