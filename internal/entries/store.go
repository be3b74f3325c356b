package entries

import (
	"context"
	"errors"
)

// Fields is a partial update: column name -> new value. A nil value clears
// the column. Store implementations must reject unknown keys.
type Fields map[string]any

// Mutable columns accepted by Store.Update.
const (
	FieldText        = "text"
	FieldType        = "type"
	FieldNote        = "note"
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
	FieldIsCompleted = "is_completed"
	FieldSortOrder   = "sort_order"
)

var ErrNotFound = errors.New("entry not found")

// Store is the remote authoritative store for one table of entries. Every
// call is scoped by the owning user id; implementations must never touch
// rows belonging to anyone else.
type Store interface {
	List(ctx context.Context, userID int) ([]Entry, error)
	Insert(ctx context.Context, userID int, e Entry) error
	Update(ctx context.Context, entryID string, userID int, fields Fields) error
	Delete(ctx context.Context, entryID string, userID int) error
}
