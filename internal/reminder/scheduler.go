package reminder

import (
	"log"
	"time"
)

// Scheduler fires one-shot reminders. Timers live in this process only:
// they are not cancellable once set and are lost if the process exits
// before firing. Cross-day reminders resolve successfully but are
// acknowledged without a timer; only same-day delivery is supported.
type Scheduler struct {
	resolver *Resolver

	// overridable for tests
	now    func() time.Time
	notify func(text string, at time.Time)
}

func NewScheduler(r *Resolver) *Scheduler {
	return &Scheduler{
		resolver: r,
		now:      time.Now,
		notify: func(text string, at time.Time) {
			log.Printf("🔔 Reminder: %s (scheduled for %s)", text, at.Format(time.Kitchen))
		},
	}
}

// Set resolves timeText and, for a same-day instant, arms a timer for the
// remaining delay. The returned bool reports whether a timer was armed.
func (s *Scheduler) Set(entryText, timeText string, offsetMinutes int) (Resolution, bool, error) {
	res, err := s.resolver.Resolve(timeText, offsetMinutes, s.now())
	if err != nil {
		return Resolution{}, false, err
	}
	if !res.SameDay {
		// the reminder counts as set, but nothing will fire
		return res, false, nil
	}
	at := res.At
	time.AfterFunc(res.Delay, func() {
		s.notify(entryText, at)
	})
	return res, true, nil
}
