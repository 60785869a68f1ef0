// Package scheduler runs the refresh once a day at a fixed wall-clock time.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Daily is a once-a-day trigger at Hour:Minute in Location.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location

	spec *cron.SpecSchedule
}

// NewDaily validates the time of day and prepares the cron schedule.
func NewDaily(hour, minute int, loc *time.Location) (Daily, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Daily{}, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	if loc == nil {
		loc = time.Local
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return Daily{}, err
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return Daily{}, fmt.Errorf("unexpected schedule type %T", sched)
	}
	spec.Location = loc
	return Daily{Hour: hour, Minute: minute, Location: loc, spec: spec}, nil
}

// Next is the first target strictly after now. A run due exactly now is
// moved to the following day.
func (d Daily) Next(now time.Time) time.Time {
	if d.spec == nil {
		nd, err := NewDaily(d.Hour, d.Minute, d.Location)
		if err != nil {
			return time.Time{}
		}
		d = nd
	}
	return d.spec.Next(now)
}

// Wait is the duration from now until Next(now).
func (d Daily) Wait(now time.Time) time.Duration {
	return d.Next(now).Sub(now)
}

func (d Daily) String() string {
	name := "Local"
	if d.Location != nil {
		name = d.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", d.Hour, d.Minute, name)
}
