// Package store provides the remote-store implementations behind the
// synchronization engine: postgres (the default), sqlite (single-binary
// local mode) and an in-memory store for demos and tests.
package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"clarity-backend/internal/entries"
)

var updatableColumns = map[string]bool{
	entries.FieldText:        true,
	entries.FieldType:        true,
	entries.FieldNote:        true,
	entries.FieldStartTime:   true,
	entries.FieldEndTime:     true,
	entries.FieldIsCompleted: true,
	entries.FieldSortOrder:   true,
}

// orderedFields validates the field keys against the column whitelist and
// returns them in deterministic order.
func orderedFields(fields entries.Fields) ([]string, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !updatableColumns[k] {
			return nil, fmt.Errorf("unknown column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
