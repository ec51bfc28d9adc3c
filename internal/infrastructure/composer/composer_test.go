package composer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"WeeklyDigest/internal/domain"
)

func makeSummaries(n int) []domain.Summary {
	summaries := make([]domain.Summary, n)
	for i := range summaries {
		summaries[i] = domain.Summary{
			ArticleURL:  fmt.Sprintf("https://example.com/a/%d", i+1),
			Text:        fmt.Sprintf("Story %d covers a notable development.", i+1),
			Source:      "example.com",
			Provider:    "claude",
			PublishedAt: time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC),
		}
	}
	return summaries
}

func TestComposeStructure(t *testing.T) {
	t.Parallel()

	c := NewWeeklyComposer(3000)
	post, err := c.Compose(makeSummaries(5), "2025.W46")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if post.WeekKey != "2025.W46" {
		t.Fatalf("unexpected week key: %s", post.WeekKey)
	}
	if post.Headline != "\U0001f680 Tech & AI Weekly Digest — Week 46, 2025" {
		t.Fatalf("unexpected headline: %s", post.Headline)
	}
	if !strings.HasPrefix(post.Content, post.Headline) {
		t.Fatalf("content must open with the headline")
	}
	for i := range 5 {
		if !strings.Contains(post.Content, numberEmojis[i]) {
			t.Fatalf("missing highlight marker %s", numberEmojis[i])
		}
	}
	if !strings.Contains(post.Content, "Drop a comment below!") {
		t.Fatalf("missing call to action")
	}
	if post.ArticleCount != 5 {
		t.Fatalf("expected 5 highlights, got %d", post.ArticleCount)
	}
	if post.CharacterCount != utf8.RuneCountInString(post.Content) {
		t.Fatalf("character count %d != content rune count %d", post.CharacterCount, utf8.RuneCountInString(post.Content))
	}
	if got := post.Sources; len(got) != 1 || got[0] != "example.com" {
		t.Fatalf("unexpected sources: %v", got)
	}
}

func TestComposeCapsHighlights(t *testing.T) {
	t.Parallel()

	c := NewWeeklyComposer(3000)
	post, err := c.Compose(makeSummaries(10), "2025.W46")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if post.ArticleCount != maxHighlights {
		t.Fatalf("expected %d highlights, got %d", maxHighlights, post.ArticleCount)
	}
	if strings.Contains(post.Content, "Story 7") {
		t.Fatalf("highlight beyond the cap leaked into the post")
	}
}

func TestComposeHashtags(t *testing.T) {
	t.Parallel()

	summaries := makeSummaries(3)
	summaries[0].Text = "A breakthrough in machine learning and cloud infrastructure."
	summaries[1].Text = "New security tooling lands for devops teams using open source software."
	summaries[2].Text = "Quantum data blockchain edge gpt llm developments everywhere."

	c := NewWeeklyComposer(3000)
	post, err := c.Compose(summaries, "2025.W46")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if len(post.Hashtags) > 8 {
		t.Fatalf("hashtags must be capped at 8, got %d", len(post.Hashtags))
	}
	for i, want := range coreHashtags {
		if post.Hashtags[i] != want {
			t.Fatalf("core hashtag %d: got %s, want %s", i, post.Hashtags[i], want)
		}
	}
	seen := map[string]bool{}
	for _, tag := range post.Hashtags {
		if seen[tag] {
			t.Fatalf("duplicate hashtag %s", tag)
		}
		seen[tag] = true
	}
	if !seen["#MachineLearning"] {
		t.Fatalf("expected contextual tag #MachineLearning in %v", post.Hashtags)
	}
}

func TestComposeAutoWeekKey(t *testing.T) {
	t.Parallel()

	c := NewWeeklyComposer(3000)
	c.now = func() time.Time { return time.Date(2025, 11, 14, 12, 0, 0, 0, time.UTC) }

	post, err := c.Compose(makeSummaries(3), "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if post.WeekKey != "2025.W46" {
		t.Fatalf("expected derived week key 2025.W46, got %s", post.WeekKey)
	}
}

func TestComposeTruncates(t *testing.T) {
	t.Parallel()

	summaries := makeSummaries(6)
	for i := range summaries {
		summaries[i].Text = strings.Repeat("Important sentence about technology. ", 20)
	}

	limit := 500
	c := NewWeeklyComposer(limit)
	post, err := c.Compose(summaries, "2025.W46")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if got := utf8.RuneCountInString(post.Content); got > limit {
		t.Fatalf("content rune count %d exceeds limit %d", got, limit)
	}
	if !strings.HasSuffix(post.Content, "...") {
		t.Fatalf("truncated content must end with ellipsis: %q", post.Content[len(post.Content)-10:])
	}
	// The cut lands on a sentence or paragraph boundary.
	trimmed := strings.TrimSuffix(post.Content, "...")
	if !strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "\n") {
		last := trimmed[len(trimmed)-1]
		if last == ' ' {
			t.Fatalf("cut left a trailing space")
		}
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("1️⃣ Story 🚀 about technology. 🔗 Source: example.com\n\n", 40)

	for _, limit := range []int{10, 40, 53, 54, 100, 500} {
		got := truncateToLimit(content, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d produced invalid UTF-8: %q", limit, got)
		}
		if n := utf8.RuneCountInString(got); n > limit {
			t.Fatalf("limit %d produced %d runes", limit, n)
		}
	}
}

func TestComposeEmojiContentCount(t *testing.T) {
	t.Parallel()

	summaries := makeSummaries(3)
	for i := range summaries {
		summaries[i].Text = strings.Repeat("Rockets 🚀 and robots 🤖 everywhere. ", 10)
	}

	limit := 400
	c := NewWeeklyComposer(limit)
	post, err := c.Compose(summaries, "2025.W46")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !utf8.ValidString(post.Content) {
		t.Fatalf("truncation split a multi-byte rune: %q", post.Content)
	}
	if post.CharacterCount > limit {
		t.Fatalf("character count %d exceeds limit %d", post.CharacterCount, limit)
	}
	if post.CharacterCount != utf8.RuneCountInString(post.Content) {
		t.Fatalf("character count %d != rune count %d", post.CharacterCount, utf8.RuneCountInString(post.Content))
	}
}

func TestComposeValidation(t *testing.T) {
	t.Parallel()

	c := NewWeeklyComposer(3000)

	tests := []struct {
		name    string
		mutate  func([]domain.Summary) []domain.Summary
		wantErr string
	}{
		{"empty", func([]domain.Summary) []domain.Summary { return nil }, "empty"},
		{"too few", func(s []domain.Summary) []domain.Summary { return s[:2] }, "at least 3"},
		{"blank text", func(s []domain.Summary) []domain.Summary { s[1].Text = "  "; return s }, "empty text"},
		{"missing url", func(s []domain.Summary) []domain.Summary { s[0].ArticleURL = ""; return s }, "article URL"},
		{"missing source", func(s []domain.Summary) []domain.Summary { s[2].Source = ""; return s }, "source"},
		{"missing provider", func(s []domain.Summary) []domain.Summary { s[0].Provider = ""; return s }, "provider"},
		{"zero date", func(s []domain.Summary) []domain.Summary { s[0].PublishedAt = time.Time{}; return s }, "published date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Compose(tt.mutate(makeSummaries(3)), "2025.W46")
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
