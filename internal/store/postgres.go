package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"clarity-backend/internal/entries"
)

// Postgres is the default remote store, one row per entry, every statement
// scoped by the owning user id.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         SERIAL PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	password   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entries (
	id           TEXT PRIMARY KEY,
	user_id      INTEGER NOT NULL REFERENCES users(id),
	text         TEXT NOT NULL,
	type         TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 5,
	note         TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	start_time   TIMESTAMPTZ,
	end_time     TIMESTAMPTZ,
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	sort_order   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id);

CREATE TABLE IF NOT EXISTS analytics_events (
	id               BIGSERIAL PRIMARY KEY,
	event_name       TEXT NOT NULL,
	event_time       TIMESTAMPTZ NOT NULL,
	user_id          INTEGER NOT NULL,
	session_id       TEXT,
	platform         TEXT,
	app_version      TEXT,
	device_locale    TEXT,
	ip_country       TEXT,
	source_event_key TEXT,
	properties       JSONB
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_analytics_source_key
	ON analytics_events(source_event_key)
	WHERE source_event_key IS NOT NULL;
`

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

const entryColumns = `id, text, type, priority, COALESCE(note,''), created_at, start_time, end_time, is_completed, sort_order`

func (s *Postgres) List(ctx context.Context, userID int) ([]entries.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE user_id = $1
		ORDER BY sort_order ASC NULLS LAST, created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var result []entries.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return result, nil
}

func scanEntry(rows *sql.Rows) (entries.Entry, error) {
	var (
		e         entries.Entry
		start     sql.NullTime
		end       sql.NullTime
		sortOrder sql.NullInt64
	)
	err := rows.Scan(
		&e.ID,
		&e.Text,
		&e.Type,
		&e.Priority,
		&e.Note,
		&e.CreatedAt,
		&start,
		&end,
		&e.IsCompleted,
		&sortOrder,
	)
	if err != nil {
		return entries.Entry{}, err
	}
	if start.Valid {
		t := start.Time
		e.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		e.EndTime = &t
	}
	if sortOrder.Valid {
		v := int(sortOrder.Int64)
		e.SortOrder = &v
	}
	return e, nil
}

func (s *Postgres) Insert(ctx context.Context, userID int, e entries.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, text, type, priority, note, created_at, start_time, end_time, is_completed, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		e.ID, userID, e.Text, string(e.Type), e.Priority,
		nullString(e.Note), e.CreatedAt,
		nullTime(e.StartTime), nullTime(e.EndTime),
		e.IsCompleted, nullInt(e.SortOrder),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, entryID string, userID int, fields entries.Fields) error {
	keys, err := orderedFields(fields)
	if err != nil {
		return err
	}

	var (
		set  []string
		args []any
	)
	for i, k := range keys {
		set = append(set, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, fields[k])
	}
	args = append(args, entryID, userID)

	query := fmt.Sprintf(
		`UPDATE entries SET %s WHERE id = $%d AND user_id = $%d`,
		strings.Join(set, ", "), len(keys)+1, len(keys)+2,
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

func (s *Postgres) Delete(ctx context.Context, entryID string, userID int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = $1 AND user_id = $2`,
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
