// Package reminder converts free-form time text into a concrete future
// instant and schedules one-shot, same-day notifications.
package reminder

import (
	"errors"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	// ErrUnparsableTime: no date/time could be extracted from the text.
	ErrUnparsableTime = errors.New("could not understand that time")
	// ErrPastInstant: the resolved instant (after the offset) is not in
	// the future.
	ErrPastInstant = errors.New("that time is already in the past")
)

// Resolution is a successfully resolved reminder instant.
type Resolution struct {
	At      time.Time     `json:"at"`
	SameDay bool          `json:"sameDay"`
	Delay   time.Duration `json:"-"`
}

// Resolver parses natural-language time expressions relative to "now".
type Resolver struct {
	parser *when.Parser
}

func NewResolver() *Resolver {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Resolver{parser: w}
}

// Resolve parses timeText against now and subtracts offsetMinutes (for
// "remind me N minutes before"). It never schedules anything.
func (r *Resolver) Resolve(timeText string, offsetMinutes int, now time.Time) (Resolution, error) {
	result, err := r.parser.Parse(timeText, now)
	if err != nil || result == nil {
		return Resolution{}, ErrUnparsableTime
	}

	at := result.Time.Add(-time.Duration(offsetMinutes) * time.Minute)
	if !at.After(now) {
		return Resolution{}, ErrPastInstant
	}

	local := at.In(now.Location())
	y1, m1, d1 := local.Date()
	y2, m2, d2 := now.Date()

	return Resolution{
		At:      at,
		SameDay: y1 == y2 && m1 == m2 && d1 == d2,
		Delay:   at.Sub(now),
	}, nil
}
