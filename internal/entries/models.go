package entries

import (
	"fmt"
	"sort"
	"time"
)

// EntryType drives which fields are meaningful and which view groups an
// entry lands in.
type EntryType string

const (
	TypeTask    EntryType = "task"
	TypeEvent   EntryType = "event"
	TypeIdea    EntryType = "idea"
	TypeFeeling EntryType = "feeling"
	TypeNote    EntryType = "note"
)

func ValidType(t EntryType) bool {
	switch t {
	case TypeTask, TypeEvent, TypeIdea, TypeFeeling, TypeNote:
		return true
	default:
		return false
	}
}

// Priority is a coarse time-of-day hint: 1=Morning ... 5=Anytime.
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 5
)

type Entry struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Type        EntryType  `json:"type"`
	Priority    int        `json:"priority"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
	SortOrder   *int       `json:"sortOrder,omitempty"`
}

// Scheduled reports whether the entry carries a start time.
func (e Entry) Scheduled() bool {
	return e.StartTime != nil
}

// Validate checks the model invariants. It does not check ID uniqueness;
// that is the store's job.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Text == "" {
		return fmt.Errorf("entry text is empty")
	}
	if !ValidType(e.Type) {
		return fmt.Errorf("invalid entry type %q", e.Type)
	}
	if e.Priority < PriorityMin || e.Priority > PriorityMax {
		return fmt.Errorf("priority %d out of range [%d,%d]", e.Priority, PriorityMin, PriorityMax)
	}
	if e.StartTime == nil && e.EndTime != nil {
		return fmt.Errorf("end time without start time")
	}
	if e.StartTime != nil && e.EndTime != nil && !e.EndTime.After(*e.StartTime) {
		return fmt.Errorf("end time is not after start time")
	}
	return nil
}

// Less is the canonical collection order: sort_order ascending with absent
// values last, then created_at, then id. The created_at/id tail makes the
// order deterministic for entries that were never manually ranked.
func Less(a, b Entry) bool {
	switch {
	case a.SortOrder != nil && b.SortOrder != nil:
		if *a.SortOrder != *b.SortOrder {
			return *a.SortOrder < *b.SortOrder
		}
	case a.SortOrder != nil:
		return true
	case b.SortOrder != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortCollection orders a collection in place by the canonical order.
func SortCollection(list []Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		return Less(list[i], list[j])
	})
}
