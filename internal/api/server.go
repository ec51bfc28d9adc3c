package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/infrastructure/rss"
	"WeeklyDigest/internal/ports"
	"WeeklyDigest/internal/usecase"
)

// JobController is the slice of the scheduler the dashboard needs.
type JobController interface {
	TriggerPreview(ctx context.Context) (domain.PipelineResult, error)
	TriggerPublish(ctx context.Context) (domain.PipelineResult, error)
	Jobs() []domain.ScheduledJobSpec
	LastResult(jobType domain.JobType) (domain.PipelineResult, bool)
	State() usecase.SchedulerState
}

// PostPublisher publishes an already stored draft by week key.
type PostPublisher interface {
	PublishStored(ctx context.Context, weekKey string) (domain.PublishOutcome, error)
}

// FeedScout finds and scores candidate feeds for the source list.
type FeedScout interface {
	DiscoverFeeds(ctx context.Context, pageURL string, limit int) ([]string, error)
	Evaluate(ctx context.Context, feedURL string) (rss.SourceCandidate, error)
}

// Server holds the dashboard dependencies behind the HTTP routes.
type Server struct {
	store     ports.PostStore
	scheduler JobController
	publisher PostPublisher
	broker    ports.TokenBroker
	scout     FeedScout
	logger    *slog.Logger
}

// NewServer wires the dashboard handlers to their collaborators.
func NewServer(store ports.PostStore, scheduler JobController, publisher PostPublisher, broker ports.TokenBroker, scout FeedScout, logger *slog.Logger) *Server {
	return &Server{
		store:     store,
		scheduler: scheduler,
		publisher: publisher,
		broker:    broker,
		scout:     scout,
		logger:    logger,
	}
}

// Router constructs a Gin engine with the dashboard routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/v1")
	{
		v1.GET("/posts", s.handleListPosts)
		v1.POST("/posts", s.handleCreatePost)
		v1.GET("/posts/:week_key", s.handleGetPost)
		v1.POST("/posts/:week_key/approve", s.handleApprovePost)
		v1.POST("/posts/:week_key/publish", s.handlePublishPost)
		v1.DELETE("/posts/:week_key", s.handleDeletePost)

		v1.GET("/jobs", s.handleListJobs)
		v1.POST("/jobs/:type/trigger", s.handleTriggerJob)

		v1.GET("/stats", s.handleStats)

		v1.GET("/sources/discover", s.handleDiscoverSources)
		v1.GET("/sources/evaluate", s.handleEvaluateSource)

		v1.GET("/oauth/login", s.handleOAuthLogin)
		v1.GET("/oauth/callback", s.handleOAuthCallback)
	}

	return r
}
