package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clarity-backend/internal/entries"
)

// Memory is an in-process store for demo mode and tests. It enforces the
// same user scoping and column whitelist as the SQL stores.
type Memory struct {
	mu   sync.Mutex
	rows map[int][]entries.Entry // userID -> rows
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[int][]entries.Entry)}
}

func (s *Memory) List(ctx context.Context, userID int) ([]entries.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entries.Entry, len(s.rows[userID]))
	copy(out, s.rows[userID])
	entries.SortCollection(out)
	return out, nil
}

func (s *Memory) Insert(ctx context.Context, userID int, e entries.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows[userID] {
		if row.ID == e.ID {
			return fmt.Errorf("duplicate entry id %q", e.ID)
		}
	}
	s.rows[userID] = append(s.rows[userID], e)
	return nil
}

func (s *Memory) Update(ctx context.Context, entryID string, userID int, fields entries.Fields) error {
	if _, err := orderedFields(fields); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.rows[userID]
	for i := range list {
		if list[i].ID != entryID {
			continue
		}
		applyFields(&list[i], fields)
		return nil
	}
	return entries.ErrNotFound
}

func (s *Memory) Delete(ctx context.Context, entryID string, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.rows[userID]
	for i := range list {
		if list[i].ID == entryID {
			s.rows[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return entries.ErrNotFound
}

func applyFields(e *entries.Entry, fields entries.Fields) {
	for k, v := range fields {
		switch k {
		case entries.FieldText:
			e.Text, _ = v.(string)
		case entries.FieldType:
			s, _ := v.(string)
			e.Type = entries.EntryType(s)
		case entries.FieldNote:
			e.Note, _ = v.(string)
		case entries.FieldStartTime:
			e.StartTime = timePtr(v)
		case entries.FieldEndTime:
			e.EndTime = timePtr(v)
		case entries.FieldIsCompleted:
			e.IsCompleted, _ = v.(bool)
		case entries.FieldSortOrder:
			if v == nil {
				e.SortOrder = nil
			} else if n, ok := v.(int); ok {
				e.SortOrder = &n
			}
		}
	}
}

func timePtr(v any) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}
