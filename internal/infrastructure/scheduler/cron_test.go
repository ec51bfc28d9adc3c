package scheduler

import (
	"context"
	"testing"
	"time"

	"WeeklyDigest/internal/ports"
)

func TestCronSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		trigger ports.CronTrigger
		want    string
	}{
		{ports.CronTrigger{Day: time.Thursday, Hour: 18, Minute: 0}, "0 18 * * 4"},
		{ports.CronTrigger{Day: time.Friday, Hour: 10, Minute: 30}, "30 10 * * 5"},
		{ports.CronTrigger{Day: time.Sunday, Hour: 0, Minute: 0}, "0 0 * * 0"},
	}
	for _, tt := range tests {
		if got := cronSpec(tt.trigger); got != tt.want {
			t.Errorf("cronSpec(%+v) = %q, want %q", tt.trigger, got, tt.want)
		}
	}
}

func TestAddValidatesJob(t *testing.T) {
	t.Parallel()

	d := NewCronDriver(time.UTC, nil)
	if err := d.Add("preview", ports.CronTrigger{Day: time.Thursday, Hour: 18}, nil); err == nil {
		t.Fatalf("expected error for nil job func")
	}
	if err := d.Add("preview", ports.CronTrigger{Day: time.Thursday, Hour: 18}, func(time.Time) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	d := NewCronDriver(nil, nil)
	if err := d.Add("publish", ports.CronTrigger{Day: time.Friday, Hour: 10}, func(time.Time) {}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
