package domain

import (
	"fmt"
	"time"
)

// JobType distinguishes the two recurring pipeline jobs.
type JobType string

const (
	JobPreview JobType = "preview"
	JobPublish JobType = "publish"
)

// RunStatus is the terminal status of one pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// PipelineResult is produced once per orchestrator invocation and never
// mutated afterwards; a re-run for the same week yields a new result.
type PipelineResult struct {
	JobID              string        `json:"job_id"`
	JobType            JobType       `json:"job_type"`
	WeekKey            string        `json:"week_key"`
	Status             RunStatus     `json:"status"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        time.Time     `json:"completed_at"`
	ArticlesFetched    int           `json:"articles_fetched"`
	ArticlesSummarized int           `json:"articles_summarized"`
	PostCreated        bool          `json:"post_created"`
	Content            string        `json:"content,omitempty"`
	Category           ErrorCategory `json:"category,omitempty"`
	Error              string        `json:"error,omitempty"`
	Note               string        `json:"note,omitempty"`
}

// Duration reports the wall-clock time of the run.
func (r PipelineResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ScheduledJobSpec describes one recurring trigger. Specs are created when
// the scheduler is configured and never mutated while jobs execute.
type ScheduledJobSpec struct {
	Type         JobType      `json:"job_type"`
	Day          time.Weekday `json:"day"`
	Hour         int          `json:"hour"`
	Minute       int          `json:"minute"`
	Timezone     string       `json:"timezone"`
	MaxInstances int          `json:"max_instances"`
}

// TimeOfDay renders the trigger time in HH:MM form.
func (s ScheduledJobSpec) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}
