package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/claraverse/agentflow/pkg/errors"
)

// Interval names a recurrence cadence.
type Interval string

const (
	Every30Seconds Interval = "30seconds"
	EveryMinute    Interval = "minute"
	EveryMinutes   Interval = "minutes"
	Hourly         Interval = "hourly"
	Daily          Interval = "daily"
	Weekly         Interval = "weekly"
	// CronInterval schedules by a standard five-field cron expression.
	CronInterval Interval = "cron"
)

// ScheduleSpec describes when a task fires.
// Invariant: NextRun is set iff Enabled is true.
type ScheduleSpec struct {
	Enabled        bool       `json:"enabled"`
	Interval       Interval   `json:"interval"`
	MinuteInterval int        `json:"minuteInterval,omitempty"`
	Time           string     `json:"time,omitempty"` // "HH:MM", for daily/weekly
	CronExpr       string     `json:"cronExpr,omitempty"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	NextRun        *time.Time `json:"nextRun,omitempty"`
	Status         TaskStatus `json:"status,omitempty"`
}

// NextAfter computes the next trigger time strictly after ref.
// Fixed-duration intervals add their period to ref; daily and weekly
// find the next occurrence of Time, advancing a day or a week when the
// slot has already passed.
func (s ScheduleSpec) NextAfter(ref time.Time) (time.Time, error) {
	switch s.Interval {
	case Every30Seconds:
		return ref.Add(30 * time.Second), nil
	case EveryMinute:
		return ref.Add(time.Minute), nil
	case EveryMinutes:
		if s.MinuteInterval <= 0 {
			return time.Time{}, errors.Newf(errors.CodeInvalidInput,
				"minutes interval requires a positive minuteInterval, got %d", s.MinuteInterval)
		}
		return ref.Add(time.Duration(s.MinuteInterval) * time.Minute), nil
	case Hourly:
		return ref.Add(time.Hour), nil
	case Daily:
		return nextClockSlot(ref, s.Time, 24*time.Hour)
	case Weekly:
		return nextClockSlot(ref, s.Time, 7*24*time.Hour)
	case CronInterval:
		schedule, err := cron.ParseStandard(s.CronExpr)
		if err != nil {
			return time.Time{}, errors.New(errors.CodeInvalidInput,
				fmt.Sprintf("invalid cron expression %q", s.CronExpr), err)
		}
		return schedule.Next(ref), nil
	default:
		return time.Time{}, errors.Newf(errors.CodeInvalidInput, "unknown interval %q", s.Interval)
	}
}

// nextClockSlot returns the next wall-clock occurrence of hhmm strictly
// after ref, stepping by period when the slot for the current cycle has
// already passed.
func nextClockSlot(ref time.Time, hhmm string, period time.Duration) (time.Time, error) {
	hour, minute, err := parseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if !candidate.After(ref) {
		candidate = candidate.Add(period)
	}
	return candidate, nil
}

func parseClock(hhmm string) (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, errors.Newf(errors.CodeInvalidInput, "invalid time %q, want HH:MM", hhmm)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.Newf(errors.CodeInvalidInput, "time %q out of range", hhmm)
	}
	return hour, minute, nil
}
