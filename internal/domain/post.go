package domain

import "time"

// PostStatus enumerates the post record lifecycle. Transitions are
// one-directional (draft -> approved -> published) except that a failed
// record may be retried by a fresh pipeline run, which resets it to draft
// and carries the retry count forward.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostApproved  PostStatus = "approved"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// ComposedPost is the output of the post composer for one week.
type ComposedPost struct {
	WeekKey        string    `json:"week_key"`
	Content        string    `json:"content"`
	Headline       string    `json:"headline"`
	ArticleCount   int       `json:"article_count"`
	CharacterCount int       `json:"character_count"`
	Hashtags       []string  `json:"hashtags"`
	Sources        []string  `json:"sources"`
	CreatedAt      time.Time `json:"created_at"`
}

// PostMetadata is the denormalized composition metadata stored on a record.
type PostMetadata struct {
	ArticleCount int      `json:"article_count"`
	CharCount    int      `json:"char_count"`
	HashtagCount int      `json:"hashtag_count"`
	Sources      []string `json:"sources"`
}

// PostRecord is the persistent record keyed by week key, one per weekly cycle.
type PostRecord struct {
	WeekKey         string       `json:"week_key"`
	Content         string       `json:"content"`
	Status          PostStatus   `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	PublishedAt     *time.Time   `json:"published_at,omitempty"`
	ExternalPostID  string       `json:"external_post_id,omitempty"`
	ExternalPostURL string       `json:"external_post_url,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	RetryCount      int          `json:"retry_count"`
	Metadata        PostMetadata `json:"metadata"`
}

// PublishReceipt is the successful outcome of an external publish call.
type PublishReceipt struct {
	PostID  string `json:"post_id"`
	PostURL string `json:"post_url"`
}

// PublishOutcome describes how the publish step of a run concluded,
// whether invoked by the pipeline or directly from the dashboard.
type PublishOutcome struct {
	WeekKey string     `json:"week_key"`
	Success bool       `json:"success"`
	Skipped bool       `json:"skipped"`
	Status  PostStatus `json:"status"`
	PostID  string     `json:"post_id,omitempty"`
	PostURL string     `json:"post_url,omitempty"`
	Note    string     `json:"note,omitempty"`
	Error   string     `json:"error,omitempty"`
}
