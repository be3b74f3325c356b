package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"clarity-backend/internal/entries"
)

// SQLite is the single-binary local store mode. Timestamps are stored as
// RFC3339 text so rows round-trip without driver-specific time handling.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entries (
	id           TEXT PRIMARY KEY,
	user_id      INTEGER NOT NULL REFERENCES users(id),
	text         TEXT NOT NULL,
	type         TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 5,
	note         TEXT,
	created_at   TEXT NOT NULL,
	start_time   TEXT,
	end_time     TEXT,
	is_completed INTEGER NOT NULL DEFAULT 0,
	sort_order   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id);

CREATE TABLE IF NOT EXISTS analytics_events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	event_name       TEXT NOT NULL,
	event_time       TEXT NOT NULL,
	user_id          INTEGER NOT NULL,
	session_id       TEXT,
	platform         TEXT,
	app_version      TEXT,
	device_locale    TEXT,
	ip_country       TEXT,
	source_event_key TEXT,
	properties       TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_analytics_source_key
	ON analytics_events(source_event_key)
	WHERE source_event_key IS NOT NULL;
`

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLite) List(ctx context.Context, userID int) ([]entries.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, type, priority, COALESCE(note,''), created_at, start_time, end_time, is_completed, sort_order
		FROM entries
		WHERE user_id = ?
		ORDER BY sort_order IS NULL, sort_order ASC, created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var result []entries.Entry
	for rows.Next() {
		var (
			e         entries.Entry
			created   string
			start     sql.NullString
			end       sql.NullString
			completed int
			sortOrder sql.NullInt64
		)
		err := rows.Scan(
			&e.ID, &e.Text, &e.Type, &e.Priority, &e.Note,
			&created, &start, &end, &completed, &sortOrder,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if e.StartTime, err = parseNullTime(start); err != nil {
			return nil, fmt.Errorf("parse start_time: %w", err)
		}
		if e.EndTime, err = parseNullTime(end); err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		e.IsCompleted = completed != 0
		if sortOrder.Valid {
			v := int(sortOrder.Int64)
			e.SortOrder = &v
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return result, nil
}

func (s *SQLite) Insert(ctx context.Context, userID int, e entries.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, text, type, priority, note, created_at, start_time, end_time, is_completed, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, userID, e.Text, string(e.Type), e.Priority,
		nullString(e.Note), formatTime(e.CreatedAt),
		formatNullTime(e.StartTime), formatNullTime(e.EndTime),
		boolToInt(e.IsCompleted), nullInt(e.SortOrder),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, entryID string, userID int, fields entries.Fields) error {
	keys, err := orderedFields(fields)
	if err != nil {
		return err
	}

	var (
		set  []string
		args []any
	)
	for _, k := range keys {
		set = append(set, k+" = ?")
		args = append(args, sqliteValue(fields[k]))
	}
	args = append(args, entryID, userID)

	query := fmt.Sprintf(
		`UPDATE entries SET %s WHERE id = ? AND user_id = ?`,
		strings.Join(set, ", "),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return entries.ErrNotFound
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, entryID string, userID int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = ? AND user_id = ?`,
		entryID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return entries.ErrNotFound
	}
	return nil
}

// sqliteValue coerces the driver-agnostic field values the engine writes
// into what the sqlite driver stores.
func sqliteValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return formatTime(t)
	case bool:
		return boolToInt(t)
	default:
		return v
	}
}

// Fixed-width fractional seconds keep lexicographic order chronological,
// which ORDER BY created_at relies on.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
