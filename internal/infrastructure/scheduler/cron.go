package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"WeeklyDigest/internal/ports"
)

// CronDriver adapts robfig/cron to the scheduler port. Jobs fire in the
// configured location; Stop waits for running jobs, bounded by the caller.
type CronDriver struct {
	cron   *cron.Cron
	logger *slog.Logger
}

var _ ports.CronDriver = (*CronDriver)(nil)

// NewCronDriver builds a driver whose triggers evaluate in loc.
func NewCronDriver(loc *time.Location, logger *slog.Logger) *CronDriver {
	if loc == nil {
		loc = time.UTC
	}
	return &CronDriver{
		cron:   cron.New(cron.WithLocation(loc)),
		logger: logger,
	}
}

// Add registers a weekly job.
func (d *CronDriver) Add(id string, trigger ports.CronTrigger, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("job %s: nil func", id)
	}

	_, err := d.cron.AddFunc(cronSpec(trigger), func() {
		job(time.Now())
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", id, err)
	}

	if d.logger != nil {
		d.logger.Debug("cron job registered", "id", id, "spec", cronSpec(trigger))
	}
	return nil
}

// Start begins firing registered jobs.
func (d *CronDriver) Start() {
	d.cron.Start()
}

// Stop halts firing and waits for in-flight jobs until ctx expires.
func (d *CronDriver) Stop(ctx context.Context) error {
	drained := d.cron.Stop()
	select {
	case <-drained.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron drain: %w", ctx.Err())
	}
}

// cronSpec renders a weekly trigger as a standard five-field cron expression.
// time.Weekday and cron both number Sunday as 0.
func cronSpec(trigger ports.CronTrigger) string {
	return fmt.Sprintf("%d %d * * %d", trigger.Minute, trigger.Hour, int(trigger.Day))
}
