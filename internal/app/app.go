package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"WeeklyDigest/internal/api"
	"WeeklyDigest/internal/config"
	"WeeklyDigest/internal/infrastructure/composer"
	"WeeklyDigest/internal/infrastructure/linkedin"
	"WeeklyDigest/internal/infrastructure/llm"
	"WeeklyDigest/internal/infrastructure/rss"
	schedulerinfra "WeeklyDigest/internal/infrastructure/scheduler"
	"WeeklyDigest/internal/infrastructure/storage"
	"WeeklyDigest/internal/ports"
	"WeeklyDigest/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// App owns the assembled components and their lifecycle.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *usecase.Scheduler
	server    *http.Server
	db        *sql.DB
}

// New wires every adapter and use case from configuration.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	store, db, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	summarizer, err := llm.New(llm.Config{
		Provider:        cfg.Summarizer.Provider,
		AnthropicAPIKey: cfg.Summarizer.AnthropicAPIKey,
		ClaudeModel:     cfg.Summarizer.ClaudeModel,
		OllamaBaseURL:   cfg.Summarizer.OllamaBaseURL,
		OllamaModel:     cfg.Summarizer.OllamaModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build summarizer: %w", err)
	}

	publisher, err := linkedin.NewPublisher(linkedin.Config{
		ClientID:       cfg.LinkedIn.ClientID,
		ClientSecret:   cfg.LinkedIn.ClientSecret,
		RedirectURL:    cfg.LinkedIn.RedirectURL,
		AuthorURN:      cfg.LinkedIn.AuthorURN,
		CredentialsDir: cfg.LinkedIn.CredentialsDir,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build publisher: %w", err)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     rss.NewFeedSource(cfg.Pipeline.PerSourceLimit, logger),
		Summarizer: summarizer,
		Composer:   composer.NewWeeklyComposer(cfg.Pipeline.CharacterLimit),
		Store:      store,
		Publisher:  publisher,
		Logger:     logger,
		Config: usecase.PipelineConfig{
			Sources:            cfg.Pipeline.Sources,
			MaxArticles:        cfg.Pipeline.MaxArticles,
			MinSummaries:       cfg.Pipeline.MinSummaries,
			TargetSummaries:    cfg.Pipeline.TargetSummaries,
			MaxPublishAttempts: cfg.Pipeline.MaxPublishAttempts,
			RetryBackoffBase:   time.Duration(cfg.Pipeline.RetryBackoffSeconds) * time.Second,
			DryRun:             cfg.Pipeline.DryRun,
		},
	})

	previewDay, err := config.ParseWeekday(cfg.Scheduler.PreviewDay)
	if err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	publishDay, err := config.ParseWeekday(cfg.Scheduler.PublishDay)
	if err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}

	location := cfg.Scheduler.Location()
	sched, err := usecase.NewScheduler(
		schedulerinfra.NewCronDriver(location, logger),
		pipeline,
		usecase.SchedulerConfig{
			Location:    location,
			PreviewDay:  previewDay,
			PreviewTime: cfg.Scheduler.PreviewTime,
			PublishDay:  publishDay,
			PublishTime: cfg.Scheduler.PublishTime,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	dashboard := api.NewServer(store, sched, pipeline, publisher, rss.NewDiscovery(nil, logger), logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		scheduler: sched,
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      dashboard.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		db: db,
	}, nil
}

// Run starts the scheduler and the dashboard API, then blocks until the
// context is cancelled and everything has shut down.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("dashboard listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-serverErr:
		a.logger.Error("dashboard server failed", "error", err)
		return a.close(err)
	}

	return a.close(nil)
}

func (a *App) close(cause error) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("dashboard shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler shutdown failed", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("close database", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
	return cause
}

// buildStore selects Postgres when a DSN is configured, otherwise the
// keyed-file store.
func buildStore(cfg config.Config, logger *slog.Logger) (ports.PostStore, *sql.DB, error) {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("using postgres post store")
		return storage.NewPostgresStore(db), db, nil
	}

	store, err := storage.NewFileStore(cfg.Storage.PostsDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build file store: %w", err)
	}
	logger.Info("using file post store", "dir", cfg.Storage.PostsDir)
	return store, nil, nil
}
