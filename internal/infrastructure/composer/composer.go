package composer

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

const (
	defaultCharacterLimit = 3000
	maxHighlights         = 6
	minSummaries          = 3
)

// ValidationError reports malformed composer input. Composition is atomic:
// a validation failure yields no partial post.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid summaries: " + e.Reason
}

var numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣"}

var coreHashtags = []string{"#TechNews", "#ArtificialIntelligence", "#TechWeekly"}

// contextualHashtags is ordered so tag selection is deterministic.
var contextualHashtags = []struct {
	keyword string
	tag     string
}{
	{"machine learning", "#MachineLearning"},
	{"ml", "#MachineLearning"},
	{"cloud", "#CloudComputing"},
	{"security", "#Cybersecurity"},
	{"cyber", "#Cybersecurity"},
	{"devops", "#DevOps"},
	{"software", "#SoftwareEngineering"},
	{"data", "#DataScience"},
	{"open source", "#OpenSource"},
	{"blockchain", "#Blockchain"},
	{"quantum", "#QuantumComputing"},
	{"edge", "#EdgeComputing"},
	{"ai", "#AI"},
	{"gpt", "#AI"},
	{"llm", "#AI"},
}

// WeeklyComposer builds the weekly digest post from article summaries.
type WeeklyComposer struct {
	characterLimit int
	now            func() time.Time
}

var _ ports.PostComposer = (*WeeklyComposer)(nil)

// NewWeeklyComposer builds a composer bounded at characterLimit.
func NewWeeklyComposer(characterLimit int) *WeeklyComposer {
	if characterLimit <= 0 {
		characterLimit = defaultCharacterLimit
	}
	return &WeeklyComposer{characterLimit: characterLimit, now: time.Now}
}

// Compose assembles headline, highlights, call to action, and hashtags into
// a single post bounded by the character limit.
func (c *WeeklyComposer) Compose(summaries []domain.Summary, weekKey string) (domain.ComposedPost, error) {
	if err := validateSummaries(summaries); err != nil {
		return domain.ComposedPost{}, err
	}
	if weekKey == "" {
		weekKey = domain.FormatWeekKey(c.now())
	}

	selected := summaries
	if len(selected) > maxHighlights {
		selected = selected[:maxHighlights]
	}

	headline := generateHeadline(weekKey)
	hashtags := selectHashtags(selected)

	parts := []string{
		headline,
		"",
		"This week's top stories in technology and artificial intelligence:",
		"",
	}
	for i, summary := range selected {
		parts = append(parts, formatHighlight(summary, i), "")
	}
	parts = append(parts,
		"\U0001f4a1 What caught your attention this week? Drop a comment below!",
		"",
		strings.Join(hashtags, " "),
	)

	content := strings.Join(parts, "\n")
	if utf8.RuneCountInString(content) > c.characterLimit {
		content = truncateToLimit(content, c.characterLimit)
	}

	return domain.ComposedPost{
		WeekKey:        weekKey,
		Content:        content,
		Headline:       headline,
		ArticleCount:   len(selected),
		CharacterCount: utf8.RuneCountInString(content),
		Hashtags:       hashtags,
		Sources:        uniqueSources(selected),
		CreatedAt:      c.now().UTC(),
	}, nil
}

func generateHeadline(weekKey string) string {
	year, week, ok := strings.Cut(weekKey, ".")
	if !ok {
		return fmt.Sprintf("\U0001f680 Tech & AI Weekly Digest — %s", weekKey)
	}
	week = strings.TrimPrefix(week, "W")
	return fmt.Sprintf("\U0001f680 Tech & AI Weekly Digest — Week %s, %s", week, year)
}

func formatHighlight(summary domain.Summary, index int) string {
	marker := fmt.Sprintf("%d.", index+1)
	if index < len(numberEmojis) {
		marker = numberEmojis[index]
	}
	return fmt.Sprintf("%s %s\n   \U0001f517 Source: %s", marker, summary.Text, summary.Source)
}

// selectHashtags combines the core tags with contextual tags matched against
// the joined summary text, capped at 8 unique tags.
func selectHashtags(summaries []domain.Summary) []string {
	var builder strings.Builder
	for _, summary := range summaries {
		builder.WriteString(strings.ToLower(summary.Text))
		builder.WriteString(" ")
	}
	text := builder.String()

	tags := make([]string, 0, 8)
	seen := map[string]bool{}
	add := func(tag string) {
		if !seen[tag] && len(tags) < 8 {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, tag := range coreHashtags {
		add(tag)
	}
	for _, entry := range contextualHashtags {
		if strings.Contains(text, entry.keyword) {
			add(entry.tag)
		}
	}
	return tags
}

// truncateToLimit cuts at a sentence or paragraph boundary where possible,
// falling back to the last space, and appends an ellipsis. The limit counts
// runes, not bytes, so emoji markers never get split mid-sequence.
func truncateToLimit(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	if limit <= 53 {
		return string(runes[:limit])
	}

	truncated := string(runes[:limit-50])

	cut := strings.LastIndex(truncated, ".")
	if p := strings.LastIndex(truncated, "\n\n"); p > cut {
		cut = p
	}

	if cut > 0 {
		truncated = truncated[:cut+1]
	} else if space := strings.LastIndex(truncated, " "); space > 0 {
		truncated = truncated[:space]
	}

	return truncated + "..."
}

func uniqueSources(summaries []domain.Summary) []string {
	seen := map[string]bool{}
	sources := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		if !seen[summary.Source] {
			seen[summary.Source] = true
			sources = append(sources, summary.Source)
		}
	}
	return sources
}

func validateSummaries(summaries []domain.Summary) error {
	if len(summaries) == 0 {
		return &ValidationError{Reason: "summaries list cannot be empty"}
	}
	if len(summaries) < minSummaries {
		return &ValidationError{Reason: fmt.Sprintf("need at least %d summaries to compose a post, got %d", minSummaries, len(summaries))}
	}
	for i, summary := range summaries {
		switch {
		case strings.TrimSpace(summary.Text) == "":
			return &ValidationError{Reason: fmt.Sprintf("summary at index %d has empty text", i)}
		case summary.ArticleURL == "":
			return &ValidationError{Reason: fmt.Sprintf("summary at index %d is missing the article URL", i)}
		case summary.Source == "":
			return &ValidationError{Reason: fmt.Sprintf("summary at index %d is missing the source", i)}
		case summary.Provider == "":
			return &ValidationError{Reason: fmt.Sprintf("summary at index %d is missing the provider", i)}
		case summary.PublishedAt.IsZero():
			return &ValidationError{Reason: fmt.Sprintf("summary at index %d is missing the published date", i)}
		}
	}
	return nil
}
