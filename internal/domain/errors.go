package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies how a pipeline run terminated. Categories are
// stable identifiers consumed by alerting and the dashboard.
type ErrorCategory string

const (
	// CategoryFetch: no usable articles were obtained; fatal for the run.
	CategoryFetch ErrorCategory = "fetch_error"
	// CategoryInsufficientContent: too few summaries survived; fatal, but
	// distinguishable from a fetch failure for alerting.
	CategoryInsufficientContent ErrorCategory = "insufficient_content"
	// CategoryCompose: composer validation or logic failure; composition is
	// atomic, so no partial post exists.
	CategoryCompose ErrorCategory = "compose_error"
	// CategoryPublish: publish attempts exhausted; the draft persist stands.
	CategoryPublish ErrorCategory = "publish_error"
	// CategoryDuplicateSkip is informational, not an error: the idempotency
	// check short-circuited publishing.
	CategoryDuplicateSkip ErrorCategory = "duplicate_publish_skip"
	// CategoryConfiguration: the scheduler refused to start.
	CategoryConfiguration ErrorCategory = "configuration_error"
	// CategoryInternal covers unexpected faults converted into a failed result.
	CategoryInternal ErrorCategory = "internal_error"
)

// PipelineError carries the category alongside the underlying cause.
type PipelineError struct {
	Category ErrorCategory
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewConfigurationError wraps a startup validation failure.
func NewConfigurationError(format string, args ...any) error {
	return &PipelineError{Category: CategoryConfiguration, Err: fmt.Errorf(format, args...)}
}

// PublishError is returned by publishers so callers can distinguish
// transient failures (timeouts, rate limits) from permanent ones
// (bad credentials, invalid payload).
type PublishError struct {
	Transient bool
	Err       error
}

func (e *PublishError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("publish failed (%s): %v", kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a publish failure worth retrying.
func IsTransient(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Transient
}
