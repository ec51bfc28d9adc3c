package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

// Scheduler lifecycle errors.
var (
	ErrJobAlreadyRunning    = errors.New("job of this type is already running")
	ErrSchedulerNotStopped  = errors.New("scheduler is not stopped")
	ErrSchedulerUnavailable = errors.New("scheduler is shutting down")
)

// SchedulerState is the scheduler lifecycle: stopped -> running ->
// shutting_down -> stopped.
type SchedulerState string

const (
	SchedulerStopped      SchedulerState = "stopped"
	SchedulerRunning      SchedulerState = "running"
	SchedulerShuttingDown SchedulerState = "shutting_down"
)

// PipelineRunner is the orchestrator surface the scheduler drives.
type PipelineRunner interface {
	Run(ctx context.Context, weekKey string, jobType domain.JobType) domain.PipelineResult
}

// SchedulerConfig defines the two weekly triggers.
type SchedulerConfig struct {
	Location    *time.Location
	PreviewDay  time.Weekday
	PreviewTime string
	PublishDay  time.Weekday
	PublishTime string
}

// Scheduler maintains the recurring preview and publish triggers and a
// synchronous manual trigger path. All mutable state lives on the instance
// so independent schedulers can coexist in tests.
type Scheduler struct {
	driver   ports.CronDriver
	pipeline PipelineRunner
	logger   *slog.Logger
	loc      *time.Location
	specs    []domain.ScheduledJobSpec

	mu    sync.Mutex
	state SchedulerState
	busy  map[domain.JobType]bool
	last  map[domain.JobType]domain.PipelineResult
	wg    sync.WaitGroup

	now func() time.Time
}

// NewScheduler validates the job specs and builds a stopped scheduler.
// Malformed time strings surface here as a configuration error, before the
// scheduler can ever enter the running state.
func NewScheduler(driver ports.CronDriver, pipeline PipelineRunner, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	previewHour, previewMinute, err := ParseClock(cfg.PreviewTime)
	if err != nil {
		return nil, domain.NewConfigurationError("preview time: %v", err)
	}
	publishHour, publishMinute, err := ParseClock(cfg.PublishTime)
	if err != nil {
		return nil, domain.NewConfigurationError("publish time: %v", err)
	}

	specs := []domain.ScheduledJobSpec{
		{Type: domain.JobPreview, Day: cfg.PreviewDay, Hour: previewHour, Minute: previewMinute, Timezone: loc.String(), MaxInstances: 1},
		{Type: domain.JobPublish, Day: cfg.PublishDay, Hour: publishHour, Minute: publishMinute, Timezone: loc.String(), MaxInstances: 1},
	}

	return &Scheduler{
		driver:   driver,
		pipeline: pipeline,
		logger:   logger,
		loc:      loc,
		specs:    specs,
		state:    SchedulerStopped,
		busy:     map[domain.JobType]bool{},
		last:     map[domain.JobType]domain.PipelineResult{},
		now:      time.Now,
	}, nil
}

// Start registers both jobs with the cron driver and enters running state.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SchedulerStopped {
		return fmt.Errorf("%w: state %s", ErrSchedulerNotStopped, s.state)
	}

	for _, spec := range s.specs {
		spec := spec
		trigger := ports.CronTrigger{Day: spec.Day, Hour: spec.Hour, Minute: spec.Minute}
		err := s.driver.Add(string(spec.Type), trigger, func(fireTime time.Time) {
			s.fire(spec.Type, fireTime)
		})
		if err != nil {
			return domain.NewConfigurationError("register %s job: %v", spec.Type, err)
		}
		s.log().Info("job scheduled",
			"job_type", spec.Type, "day", spec.Day.String(),
			"time", spec.TimeOfDay(), "timezone", spec.Timezone)
	}

	s.driver.Start()
	s.state = SchedulerRunning
	s.log().Info("scheduler started")
	return nil
}

// Stop drains in-flight invocations before declaring the scheduler stopped.
// The wait is bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SchedulerRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = SchedulerShuttingDown
	s.mu.Unlock()

	err := s.driver.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	s.mu.Lock()
	s.state = SchedulerStopped
	s.mu.Unlock()
	s.log().Info("scheduler stopped", "drained", err == nil)
	return err
}

// TriggerPreview runs the preview job synchronously, outside the recurring
// schedule, and returns its result to the caller.
func (s *Scheduler) TriggerPreview(ctx context.Context) (domain.PipelineResult, error) {
	return s.runJob(ctx, domain.JobPreview, s.now())
}

// TriggerPublish runs the publish job synchronously.
func (s *Scheduler) TriggerPublish(ctx context.Context) (domain.PipelineResult, error) {
	return s.runJob(ctx, domain.JobPublish, s.now())
}

// State reports the current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Jobs lists the configured job specs.
func (s *Scheduler) Jobs() []domain.ScheduledJobSpec {
	out := make([]domain.ScheduledJobSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// LastResult returns the most recent result for a job type, if any run of
// that type has completed.
func (s *Scheduler) LastResult(jobType domain.JobType) (domain.PipelineResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.last[jobType]
	return result, ok
}

// fire handles one cron firing. An overlapping fire for a busy job type is
// skipped with a warning, never queued.
func (s *Scheduler) fire(jobType domain.JobType, fireTime time.Time) {
	result, err := s.runJob(context.Background(), jobType, fireTime)
	if errors.Is(err, ErrJobAlreadyRunning) {
		s.log().Warn("job fire skipped, previous invocation still running", "job_type", jobType)
		return
	}
	if err != nil {
		s.log().Warn("job fire rejected", "job_type", jobType, "error", err)
		return
	}
	s.log().Info("scheduled job completed",
		"job_type", jobType, "week_key", result.WeekKey,
		"status", result.Status, "duration", result.Duration())
}

// runJob enforces max_instances=1 per job type and records the result.
// Scheduled fires and manual triggers share the same guard.
func (s *Scheduler) runJob(ctx context.Context, jobType domain.JobType, fireTime time.Time) (domain.PipelineResult, error) {
	s.mu.Lock()
	if s.state == SchedulerShuttingDown {
		s.mu.Unlock()
		return domain.PipelineResult{}, ErrSchedulerUnavailable
	}
	if s.busy[jobType] {
		s.mu.Unlock()
		return domain.PipelineResult{}, ErrJobAlreadyRunning
	}
	s.busy[jobType] = true
	s.wg.Add(1)
	s.mu.Unlock()

	weekKey := domain.FormatWeekKey(fireTime.In(s.loc))
	result := s.pipeline.Run(ctx, weekKey, jobType)

	s.mu.Lock()
	s.busy[jobType] = false
	s.last[jobType] = result
	s.mu.Unlock()
	s.wg.Done()

	return result, nil
}

// ParseClock parses an HH:MM string, validating the hour and minute ranges.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format %q, expected HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time format %q, expected HH:MM", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time format %q, expected HH:MM", value)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour %d, must be 0-23", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute %d, must be 0-59", minute)
	}
	return hour, minute, nil
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
