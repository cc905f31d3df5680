// Package clock provides the time source and recurring-schedule loop shared
// by the token monitor and the feed refresher.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock is the time capability injected into the engine.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ParseSchedule accepts a standard 5-field cron spec or a descriptor such as
// "@every 60s" or "@hourly".
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Loop calls fn at every activation of sched until ctx is done. fn runs on
// the calling goroutine, so once Loop returns fn is never called again.
func Loop(ctx context.Context, c Clock, sched cron.Schedule, fn func(now time.Time)) {
	for {
		now := c.Now()
		next := sched.Next(now)
		if next.IsZero() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.After(next.Sub(now)):
		}

		if ctx.Err() != nil {
			return
		}
		fn(c.Now())
	}
}
