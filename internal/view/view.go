// Package view derives grouped planning views from a synchronized
// collection. Everything here is pure: the collection is read, never
// mutated, and the views are disposable.
package view

import (
	"fmt"
	"sort"
	"time"

	"clarity-backend/internal/entries"
)

// Scope is the temporal filter window applied before grouping.
type Scope string

const (
	ScopeDay   Scope = "day"
	ScopeWeek  Scope = "week"
	ScopeMonth Scope = "month"
	ScopeYear  Scope = "year"
	ScopeAll   Scope = "all"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeDay, ScopeWeek, ScopeMonth, ScopeYear, ScopeAll:
		return Scope(s), nil
	case "":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Mode selects the grouping.
type Mode string

const (
	ModePriority Mode = "priority"
	ModeFocus    Mode = "focus"
	ModeType     Mode = "type"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePriority, ModeFocus, ModeType:
		return Mode(s), nil
	case "":
		return ModePriority, nil
	default:
		return "", fmt.Errorf("unknown grouping mode %q", s)
	}
}

type Group struct {
	Label   string          `json:"label"`
	Entries []entries.Entry `json:"entries"`
}

// PriorityLabel maps the 1..5 time-of-day hint to its display label.
func PriorityLabel(p int) string {
	switch p {
	case 1:
		return "Morning"
	case 2:
		return "Midday"
	case 3:
		return "Afternoon"
	case 4:
		return "Evening"
	default:
		return "Anytime / Flexible"
	}
}

// InScope reports whether an entry passes the temporal filter. Entries with
// no start time are never excluded by a time filter, regardless of scope.
func InScope(e entries.Entry, scope Scope, now time.Time) bool {
	if e.StartTime == nil {
		return true
	}
	if scope == ScopeAll {
		return true
	}
	start := e.StartTime.In(now.Location())
	switch scope {
	case ScopeDay:
		return sameDay(start, now)
	case ScopeWeek:
		return startOfWeek(start).Equal(startOfWeek(now))
	case ScopeMonth:
		return start.Year() == now.Year() && start.Month() == now.Month()
	case ScopeYear:
		return start.Year() == now.Year()
	default:
		return true
	}
}

// Grouped filters the collection by scope and groups it by mode. Empty
// groups are omitted.
func Grouped(list []entries.Entry, scope Scope, mode Mode, now time.Time) []Group {
	filtered := make([]entries.Entry, 0, len(list))
	for _, e := range list {
		if InScope(e, scope, now) {
			filtered = append(filtered, e)
		}
	}
	switch mode {
	case ModeFocus:
		return focusGroups(filtered, now)
	case ModeType:
		return typeGroups(filtered)
	default:
		return priorityGroups(filtered)
	}
}

// priorityGroups renders the Morning..Anytime buckets in fixed order.
func priorityGroups(list []entries.Entry) []Group {
	buckets := make(map[int][]entries.Entry)
	for _, e := range list {
		buckets[e.Priority] = append(buckets[e.Priority], e)
	}
	var out []Group
	for p := entries.PriorityMin; p <= entries.PriorityMax; p++ {
		if len(buckets[p]) == 0 {
			continue
		}
		out = append(out, Group{Label: PriorityLabel(p), Entries: buckets[p]})
	}
	return out
}

// Focus group labels.
const (
	LabelFocusNow = "Focus Now"
	LabelLater    = "Later"
	LabelNotes    = "Notes"
)

// focusGroups is the urgency view: scheduled-for-today-or-past (or
// unscheduled but high priority) in front, the rest later, non-actionable
// types gathered under Notes.
func focusGroups(list []entries.Entry, now time.Time) []Group {
	var focus, later, notes []entries.Entry
	for _, e := range list {
		switch e.Type {
		case entries.TypeIdea, entries.TypeFeeling, entries.TypeNote:
			notes = append(notes, e)
			continue
		}
		if e.StartTime == nil {
			if e.Priority <= 3 {
				focus = append(focus, e)
			} else {
				later = append(later, e)
			}
			continue
		}
		start := e.StartTime.In(now.Location())
		if !start.After(now) || sameDay(start, now) {
			focus = append(focus, e)
		} else {
			later = append(later, e)
		}
	}

	sortByStartThenPriority(focus)
	sortByStartThenPriority(later)
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})

	var out []Group
	if len(focus) > 0 {
		out = append(out, Group{Label: LabelFocusNow, Entries: focus})
	}
	if len(later) > 0 {
		out = append(out, Group{Label: LabelLater, Entries: later})
	}
	if len(notes) > 0 {
		out = append(out, Group{Label: LabelNotes, Entries: notes})
	}
	return out
}

var typeOrder = []entries.EntryType{
	entries.TypeTask,
	entries.TypeEvent,
	entries.TypeIdea,
	entries.TypeFeeling,
	entries.TypeNote,
}

var typeLabels = map[entries.EntryType]string{
	entries.TypeTask:    "Tasks",
	entries.TypeEvent:   "Events",
	entries.TypeIdea:    "Ideas",
	entries.TypeFeeling: "Feelings",
	entries.TypeNote:    "Notes",
}

// typeGroups is the "categorised thoughts" view: one bucket per entry type
// in fixed order, collection order preserved inside each bucket.
func typeGroups(list []entries.Entry) []Group {
	buckets := make(map[entries.EntryType][]entries.Entry)
	for _, e := range list {
		buckets[e.Type] = append(buckets[e.Type], e)
	}
	var out []Group
	for _, t := range typeOrder {
		if len(buckets[t]) == 0 {
			continue
		}
		out = append(out, Group{Label: typeLabels[t], Entries: buckets[t]})
	}
	return out
}

// sortByStartThenPriority: start time ascending, unscheduled entries last,
// ties broken by priority ascending.
func sortByStartThenPriority(list []entries.Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.StartTime != nil && b.StartTime != nil:
			if !a.StartTime.Equal(*b.StartTime) {
				return a.StartTime.Before(*b.StartTime)
			}
		case a.StartTime != nil:
			return true
		case b.StartTime != nil:
			return false
		}
		return a.Priority < b.Priority
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// startOfWeek truncates to the Monday 00:00 of t's week.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
