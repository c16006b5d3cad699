package app

import (
	"fmt"
	"time"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// scheduleLayout is the only accepted schedule expression format,
// interpreted as local time in the resolver's location.
const scheduleLayout = "2006-01-02 15:04:05"

// ScheduleResolver turns a schedule expression into a delay relative to now.
// It is pure: the clock is injected so tests can pin "now".
type ScheduleResolver struct {
	loc *time.Location
	now func() time.Time
}

// NewScheduleResolver builds a resolver for the given timezone name. An empty
// name means UTC.
func NewScheduleResolver(timezone string, now func() time.Time) (*ScheduleResolver, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", timezone, err)
		}
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleResolver{loc: loc, now: now}, nil
}

// Resolve parses expr and returns how long from now the delivery should wait.
// A malformed expression yields ErrInvalidScheduleFormat; a well-formed
// expression whose instant is not strictly in the future yields
// ErrScheduleInPast. A past instant is never silently converted to "fire
// immediately" — explicit immediate-send has different semantics and the
// caller must choose.
func (r *ScheduleResolver) Resolve(expr string) (time.Duration, error) {
	at, err := time.ParseInLocation(scheduleLayout, expr, r.loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidScheduleFormat, expr)
	}

	delay := at.Sub(r.now())
	if delay <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrScheduleInPast, expr)
	}
	return delay, nil
}
