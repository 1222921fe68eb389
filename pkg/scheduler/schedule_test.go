package scheduler

import (
	"testing"
	"time"

	"github.com/claraverse/agentflow/pkg/errors"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestNextAfterFixedIntervals(t *testing.T) {
	ref := mustTime(t, "2026-03-10 08:00")
	cases := []struct {
		name string
		spec ScheduleSpec
		want time.Time
	}{
		{"thirty seconds", ScheduleSpec{Interval: Every30Seconds}, ref.Add(30 * time.Second)},
		{"minute", ScheduleSpec{Interval: EveryMinute}, ref.Add(time.Minute)},
		{"minutes", ScheduleSpec{Interval: EveryMinutes, MinuteInterval: 15}, ref.Add(15 * time.Minute)},
		{"hourly", ScheduleSpec{Interval: Hourly}, ref.Add(time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.spec.NextAfter(ref)
			if err != nil {
				t.Fatalf("NextAfter: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("NextAfter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextAfterDaily(t *testing.T) {
	spec := ScheduleSpec{Interval: Daily, Time: "09:00"}

	got, err := spec.NextAfter(mustTime(t, "2026-03-10 08:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-10 09:00"); !got.Equal(want) {
		t.Fatalf("before slot: got %v, want same-day %v", got, want)
	}

	got, err = spec.NextAfter(mustTime(t, "2026-03-10 10:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-11 09:00"); !got.Equal(want) {
		t.Fatalf("after slot: got %v, want next-day %v", got, want)
	}

	// Exactly at the slot means the next cycle: strictly after ref.
	got, err = spec.NextAfter(mustTime(t, "2026-03-10 09:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-11 09:00"); !got.Equal(want) {
		t.Fatalf("at slot: got %v, want %v", got, want)
	}
}

func TestNextAfterWeekly(t *testing.T) {
	spec := ScheduleSpec{Interval: Weekly, Time: "09:00"}

	got, err := spec.NextAfter(mustTime(t, "2026-03-10 08:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-10 09:00"); !got.Equal(want) {
		t.Fatalf("before slot: got %v, want %v", got, want)
	}

	got, err = spec.NextAfter(mustTime(t, "2026-03-10 10:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-17 09:00"); !got.Equal(want) {
		t.Fatalf("after slot: got %v, want next-week %v", got, want)
	}
}

func TestNextAfterCron(t *testing.T) {
	spec := ScheduleSpec{Interval: CronInterval, CronExpr: "0 9 * * *"}
	got, err := spec.NextAfter(mustTime(t, "2026-03-10 10:00"))
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if want := mustTime(t, "2026-03-11 09:00"); !got.Equal(want) {
		t.Fatalf("cron: got %v, want %v", got, want)
	}
}

func TestNextAfterInvalid(t *testing.T) {
	cases := []struct {
		name string
		spec ScheduleSpec
	}{
		{"minutes without interval", ScheduleSpec{Interval: EveryMinutes}},
		{"bad clock", ScheduleSpec{Interval: Daily, Time: "25:99"}},
		{"bad cron", ScheduleSpec{Interval: CronInterval, CronExpr: "not a cron"}},
		{"unknown interval", ScheduleSpec{Interval: "fortnightly"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.spec.NextAfter(time.Now()); !errors.Is(err, errors.CodeInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
}

func TestEnableDisableNextRunInvariant(t *testing.T) {
	task := NewTask("reporter", "", nil)
	task.Schedule.Interval = Hourly

	if task.Schedule.NextRun != nil {
		t.Fatal("new task must not have a next run")
	}

	now := mustTime(t, "2026-03-10 08:00")
	if err := task.Enable(now); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !task.Schedule.Enabled {
		t.Fatal("task not enabled")
	}
	if task.Schedule.NextRun == nil || !task.Schedule.NextRun.Equal(now.Add(time.Hour)) {
		t.Fatalf("NextRun = %v, want %v", task.Schedule.NextRun, now.Add(time.Hour))
	}

	task.Disable(now)
	if task.Schedule.Enabled {
		t.Fatal("task still enabled")
	}
	if task.Schedule.NextRun != nil {
		t.Fatal("disabled task keeps a next run")
	}
}

func TestEnableRejectsInvalidSchedule(t *testing.T) {
	task := NewTask("reporter", "", nil)
	task.Schedule.Interval = EveryMinutes // missing MinuteInterval
	if err := task.Enable(time.Now()); !errors.Is(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if task.Schedule.Enabled {
		t.Fatal("failed enable must leave the task disabled")
	}
}
