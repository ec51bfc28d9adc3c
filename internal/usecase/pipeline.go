package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

// ErrPostNotFound is returned when a dashboard publish targets an absent record.
var ErrPostNotFound = errors.New("post not found")

// PipelineConfig carries the tuning constants of one orchestrator instance.
type PipelineConfig struct {
	Sources            []string
	MaxArticles        int
	MinSummaries       int
	TargetSummaries    int
	MaxPublishAttempts int
	RetryBackoffBase   time.Duration
	DryRun             bool
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.MaxArticles <= 0 {
		c.MaxArticles = 10
	}
	if c.MinSummaries <= 0 {
		c.MinSummaries = 3
	}
	if c.TargetSummaries < c.MinSummaries {
		c.TargetSummaries = c.MinSummaries
	}
	if c.MaxPublishAttempts <= 0 {
		c.MaxPublishAttempts = 3
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 2 * time.Second
	}
	return c
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ArticleSource
	Summarizer ports.Summarizer
	Composer   ports.PostComposer
	Store      ports.PostStore
	Publisher  ports.Publisher
	Logger     *slog.Logger
	Config     PipelineConfig
}

// Pipeline executes the fetch -> summarize -> compose -> persist -> publish
// sequence for one week key. It keeps no state between runs beyond what it
// reads back from the post store for idempotency checks.
type Pipeline struct {
	source     ports.ArticleSource
	summarizer ports.Summarizer
	composer   ports.PostComposer
	store      ports.PostStore
	publisher  ports.Publisher
	logger     *slog.Logger
	cfg        PipelineConfig

	now   func() time.Time
	sleep func(time.Duration)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		summarizer: deps.Summarizer,
		composer:   deps.Composer,
		store:      deps.Store,
		publisher:  deps.Publisher,
		logger:     deps.Logger,
		cfg:        deps.Config.withDefaults(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Run executes one pipeline invocation for weekKey. It always returns a
// PipelineResult and never panics out: any fault that escapes the step
// handling is converted into a failed result so the scheduler's instance
// tracking stays consistent.
func (p *Pipeline) Run(ctx context.Context, weekKey string, jobType domain.JobType) (result domain.PipelineResult) {
	result = domain.PipelineResult{
		JobID:     shortJobID(),
		JobType:   jobType,
		WeekKey:   weekKey,
		Status:    domain.RunFailed,
		StartedAt: p.now(),
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = domain.RunFailed
			result.Category = domain.CategoryInternal
			result.Error = fmt.Sprintf("unexpected failure: %v", r)
			p.error("pipeline panicked", "week_key", weekKey, "panic", r)
		}
		result.CompletedAt = p.now()
	}()

	if !domain.ValidWeekKey(weekKey) {
		result.Category = domain.CategoryInternal
		result.Error = fmt.Sprintf("invalid week key %q", weekKey)
		return result
	}
	if jobType != domain.JobPreview && jobType != domain.JobPublish {
		result.Category = domain.CategoryInternal
		result.Error = fmt.Sprintf("invalid job type %q", jobType)
		return result
	}

	p.info("pipeline started", "week_key", weekKey, "job_type", jobType, "job_id", result.JobID)

	// Step 1: fetch. A fetch failure or an empty result set terminates the
	// run; nothing downstream is meaningful without source material.
	articles, err := p.source.Fetch(ctx, p.cfg.Sources)
	if err != nil {
		result.Category = domain.CategoryFetch
		result.Error = fmt.Sprintf("fetch articles: %v", err)
		return result
	}
	result.ArticlesFetched = len(articles)
	if len(articles) == 0 {
		result.Category = domain.CategoryFetch
		result.Error = "no articles fetched from any source"
		return result
	}
	p.info("articles fetched", "week_key", weekKey, "count", len(articles))

	// Step 2: summarize, capped at the configured maximum. Per-article
	// failures are absorbed and logged; only the threshold matters.
	limit := min(len(articles), p.cfg.MaxArticles)
	summaries := make([]domain.Summary, 0, limit)
	for _, article := range articles[:limit] {
		summary, sErr := p.summarizer.Summarize(ctx, article)
		if sErr != nil {
			p.warn("article summarization failed",
				"week_key", weekKey, "article_url", article.Link, "error", sErr)
			continue
		}
		summaries = append(summaries, summary)
	}
	result.ArticlesSummarized = len(summaries)
	p.info("articles summarized", "week_key", weekKey, "count", len(summaries))

	if len(summaries) < p.cfg.MinSummaries {
		result.Category = domain.CategoryInsufficientContent
		result.Error = fmt.Sprintf("insufficient summaries for composition: %d (minimum %d)",
			len(summaries), p.cfg.MinSummaries)
		return result
	}

	// Step 3: compose. Atomic; a failure emits no partial post.
	post, err := p.composer.Compose(summaries, weekKey)
	if err != nil {
		result.Category = domain.CategoryCompose
		result.Error = fmt.Sprintf("compose post: %v", err)
		return result
	}
	result.PostCreated = true
	result.Content = post.Content
	p.info("post composed", "week_key", weekKey, "character_count", post.CharacterCount)

	// Step 4: persist the draft unconditionally, preview and publish alike.
	record, err := p.persistDraft(ctx, post)
	if err != nil {
		result.Category = domain.CategoryInternal
		result.Error = fmt.Sprintf("persist draft: %v", err)
		return result
	}

	if len(summaries) < p.cfg.TargetSummaries {
		result.Status = domain.RunPartial
	} else {
		result.Status = domain.RunSuccess
	}

	// Step 5: publish, only for publish jobs.
	if jobType == domain.JobPublish {
		outcome := p.publishRecord(ctx, record)
		result.Note = outcome.Note
		if outcome.Skipped {
			result.Category = domain.CategoryDuplicateSkip
		}
		if !outcome.Success {
			result.Status = domain.RunFailed
			result.Category = domain.CategoryPublish
			result.Error = outcome.Error
		}
	}

	p.info("pipeline completed",
		"week_key", weekKey, "job_type", jobType, "status", result.Status,
		"articles_fetched", result.ArticlesFetched, "articles_summarized", result.ArticlesSummarized)
	return result
}

// PublishStored runs the publish step for an already-persisted record, the
// entry point behind the dashboard's publish action. Idempotency and the
// retry policy are identical to a scheduled publish run.
func (p *Pipeline) PublishStored(ctx context.Context, weekKey string) (domain.PublishOutcome, error) {
	record, ok, err := p.store.Load(ctx, weekKey)
	if err != nil {
		return domain.PublishOutcome{}, fmt.Errorf("load post %s: %w", weekKey, err)
	}
	if !ok {
		return domain.PublishOutcome{}, fmt.Errorf("%w: %s", ErrPostNotFound, weekKey)
	}
	return p.publishRecord(ctx, record), nil
}

// persistDraft writes the composed post as a draft record, preserving the
// history of any existing record for the same week. A published record is
// never downgraded, so the idempotency check downstream still fires.
func (p *Pipeline) persistDraft(ctx context.Context, post domain.ComposedPost) (domain.PostRecord, error) {
	now := p.now().UTC()

	record := domain.PostRecord{
		WeekKey:   post.WeekKey,
		Content:   post.Content,
		Status:    domain.PostDraft,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: domain.PostMetadata{
			ArticleCount: post.ArticleCount,
			CharCount:    post.CharacterCount,
			HashtagCount: len(post.Hashtags),
			Sources:      post.Sources,
		},
	}

	existing, ok, err := p.store.Load(ctx, post.WeekKey)
	if err != nil {
		return domain.PostRecord{}, err
	}
	if ok {
		record.CreatedAt = existing.CreatedAt
		record.ApprovedAt = existing.ApprovedAt
		record.PublishedAt = existing.PublishedAt
		record.ExternalPostID = existing.ExternalPostID
		record.ExternalPostURL = existing.ExternalPostURL
		record.RetryCount = existing.RetryCount
		if existing.Status == domain.PostPublished {
			record.Status = domain.PostPublished
			record.Content = existing.Content
		}
	}

	if err := p.store.Save(ctx, record); err != nil {
		return domain.PostRecord{}, err
	}
	p.info("draft persisted", "week_key", record.WeekKey, "status", record.Status)
	return record, nil
}

func (p *Pipeline) publishRecord(ctx context.Context, record domain.PostRecord) domain.PublishOutcome {
	outcome := domain.PublishOutcome{WeekKey: record.WeekKey, Status: record.Status}

	// Idempotency: a week key is never published twice externally.
	if record.Status == domain.PostPublished {
		p.warn("duplicate publish skipped", "week_key", record.WeekKey)
		outcome.Success = true
		outcome.Skipped = true
		outcome.PostID = record.ExternalPostID
		outcome.PostURL = record.ExternalPostURL
		outcome.Note = "publishing skipped: week already published"
		return outcome
	}

	if p.cfg.DryRun {
		p.info("dry run, publish skipped", "week_key", record.WeekKey)
		outcome.Success = true
		outcome.Skipped = true
		outcome.Note = "dry run: post saved as draft, publishing skipped"
		return outcome
	}

	receipt, err := p.publishWithRetry(ctx, record)
	now := p.now().UTC()

	if err != nil {
		record.Status = domain.PostFailed
		record.ErrorMessage = err.Error()
		record.RetryCount++
		record.UpdatedAt = now
		if saveErr := p.store.Save(ctx, record); saveErr != nil {
			p.error("failed to persist failed record", "week_key", record.WeekKey, "error", saveErr)
		}
		p.error("publishing failed", "week_key", record.WeekKey, "error", err)

		outcome.Status = domain.PostFailed
		outcome.Error = err.Error()
		return outcome
	}

	record.Status = domain.PostPublished
	record.PublishedAt = &now
	record.UpdatedAt = now
	record.ExternalPostID = receipt.PostID
	record.ExternalPostURL = receipt.PostURL
	record.ErrorMessage = ""
	if saveErr := p.store.Save(ctx, record); saveErr != nil {
		p.error("failed to persist published record", "week_key", record.WeekKey, "error", saveErr)
	}
	p.info("post published", "week_key", record.WeekKey, "post_id", receipt.PostID)

	outcome.Success = true
	outcome.Status = domain.PostPublished
	outcome.PostID = receipt.PostID
	outcome.PostURL = receipt.PostURL
	return outcome
}

// publishWithRetry applies the retry policy: up to MaxPublishAttempts total,
// exponential backoff, transient errors only. Permanent errors fail at once.
func (p *Pipeline) publishWithRetry(ctx context.Context, record domain.PostRecord) (domain.PublishReceipt, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxPublishAttempts; attempt++ {
		receipt, err := p.publisher.Publish(ctx, record.Content, record.WeekKey)
		if err == nil {
			return receipt, nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			p.warn("permanent publish error, not retrying",
				"week_key", record.WeekKey, "error", err)
			break
		}
		if attempt < p.cfg.MaxPublishAttempts {
			wait := p.cfg.RetryBackoffBase << (attempt - 1)
			p.warn("transient publish error, retrying",
				"week_key", record.WeekKey, "attempt", attempt,
				"max_attempts", p.cfg.MaxPublishAttempts, "wait", wait, "error", err)
			p.sleep(wait)
		}
	}
	return domain.PublishReceipt{}, lastErr
}

func shortJobID() string {
	return uuid.NewString()[:8]
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) error(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
