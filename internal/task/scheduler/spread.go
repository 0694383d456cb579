package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// maxFirstRunDelay caps the first-run jitter of interval schedules. Dials
// powered up together by one breaker would otherwise all query the NTP pool
// in the same second.
const maxFirstRunDelay = 30 * time.Second

// delayedFirst follows base, except that nothing fires before first.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (s delayedFirst) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// randomDelay picks a jitter in [0, limit).
func randomDelay(limit time.Duration) time.Duration {
	return rand.N(limit)
}

// intervalSchedule builds an @every schedule whose first run lands at
// now+every+jitter, jitter drawn from [0, min(every, maxFirstRunDelay)).
func intervalSchedule(every time.Duration, now time.Time, jitter func(time.Duration) time.Duration) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	limit := min(every, maxFirstRunDelay)
	if limit <= 0 || jitter == nil {
		return base, 0
	}
	d := jitter(limit)
	return delayedFirst{base: base, first: now.Add(every + d)}, d
}
