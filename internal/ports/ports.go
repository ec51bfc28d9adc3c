package ports

import (
	"context"
	"time"

	"WeeklyDigest/internal/domain"
)

// ArticleSource pulls normalized articles from the configured feeds.
// Implementations absorb per-source failures and return partial results;
// an empty slice, not an error, means no source was reachable.
type ArticleSource interface {
	Fetch(ctx context.Context, sources []string) ([]domain.Article, error)
}

// Summarizer turns one article into a short summary, reporting the
// provider and token cost.
type Summarizer interface {
	Summarize(ctx context.Context, article domain.Article) (domain.Summary, error)
}

// PostComposer builds a single bounded post from the week's summaries.
// Composition is atomic: a validation failure yields no partial post.
type PostComposer interface {
	Compose(summaries []domain.Summary, weekKey string) (domain.ComposedPost, error)
}

// PostStore is the keyed persistent record store, one record per week key.
// Save has overwrite semantics; Load reports absence via the bool, not an error.
type PostStore interface {
	Save(ctx context.Context, record domain.PostRecord) error
	Load(ctx context.Context, weekKey string) (domain.PostRecord, bool, error)
	List(ctx context.Context, status domain.PostStatus, limit int) ([]domain.PostRecord, error)
	Delete(ctx context.Context, weekKey string) error
}

// Publisher delivers a post to the external platform. Failures are typed
// (*domain.PublishError) so the orchestrator can apply its retry policy.
type Publisher interface {
	Publish(ctx context.Context, content, weekKey string) (domain.PublishReceipt, error)
}

// TokenBroker exposes the OAuth surface the dashboard needs.
type TokenBroker interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) error
}

// CronTrigger is a weekly fire time in the driver's location.
type CronTrigger struct {
	Day    time.Weekday
	Hour   int
	Minute int
}

// CronDriver runs registered jobs on their weekly triggers. Stop drains
// in-flight jobs, bounded by the caller's context.
type CronDriver interface {
	Add(id string, trigger CronTrigger, job func(time.Time)) error
	Start()
	Stop(ctx context.Context) error
}
