// Package httpapi exposes the planner core over HTTP. Handlers follow the
// constructor style: dependencies in, http.HandlerFunc out, user identity
// from the request context.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"clarity-backend/internal/ai"
	"clarity-backend/internal/analytics"
	"clarity-backend/internal/auth"
	"clarity-backend/internal/entries"
	"clarity-backend/internal/ingest"
	"clarity-backend/internal/reminder"
	"clarity-backend/internal/view"
)

// Classifier is the external text-classification call. Its output is raw,
// untrusted text; the ingestion pipeline does all the vetting.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

type collectionResponse struct {
	Entries      []entries.Entry `json:"entries"`
	IsLoading    bool            `json:"isLoading"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

func writeCollection(w http.ResponseWriter, eng *entries.Engine) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(collectionResponse{
		Entries:      eng.Snapshot(),
		IsLoading:    eng.Loading(),
		ErrorMessage: eng.LastError(),
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entries.ErrNotFound):
		http.Error(w, "entry not found", http.StatusNotFound)
	case errors.Is(err, entries.ErrInvalidMutation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// -------------------------------
// MIND DUMP
// -------------------------------

// MindDumpHandler runs raw text through classification and ingestion, then
// persists whatever survived validation. POST /mind-dump
func MindDumpHandler(mgr *entries.Manager, classifier Classifier, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.Text == "" {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}

		raw, err := classifier.Classify(r.Context(), body.Text)
		if err != nil {
			log.Printf("[WARN] classify failed user_id=%d dump=%s: %v", uid, ai.Redacted(body.Text), err)
			http.Error(w, "classification failed: "+err.Error(), http.StatusBadGateway)
			return
		}

		list, err := ingest.Run(raw, time.Now())
		if err != nil {
			var ve *ingest.ValidationError
			if errors.As(err, &ve) {
				// raw text stays in the log, never in the response
				log.Printf("[WARN] ingest rejected user_id=%d: %s raw=%q", uid, ve.Reason, ve.Raw)
			}
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		if err := eng.Ingest(r.Context(), list); err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "mind_dump_ingested", map[string]any{
			"entry_count": len(list),
			"text_len":    len(body.Text),
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// -------------------------------
// COLLECTION + VIEWS
// -------------------------------

// GetEntriesHandler returns the synchronized collection. GET /entries
func GetEntriesHandler(mgr *entries.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeCollection(w, mgr.ForUser(r.Context(), uid))
	}
}

// GroupedViewHandler derives a grouped planning view.
// GET /entries/view?scope=day|week|month|year|all&mode=priority|focus|type
func GroupedViewHandler(mgr *entries.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		scope, err := view.ParseScope(r.URL.Query().Get("scope"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mode, err := view.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		groups := view.Grouped(eng.Snapshot(), scope, mode, time.Now())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"scope":  scope,
			"mode":   mode,
			"groups": groups,
		})
	}
}

// -------------------------------
// MUTATIONS
// -------------------------------

// AddTaskHandler creates one task directly, skipping the classifier.
// POST /entries
func AddTaskHandler(mgr *entries.Manager, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		if err := eng.AddTask(r.Context(), body.Text); err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "entry_created", map[string]any{
			"input_method": "direct",
			"text_len":     len(body.Text),
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// UpdateEntryHandler is the single field-mutation endpoint.
// POST /entries/update {entry_id, field, value}
// field: category | note | title | start_time | end_time
// value: string, or null to clear (start_time/end_time only).
func UpdateEntryHandler(mgr *entries.Manager, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EntryID string  `json:"entry_id"`
			Field   string  `json:"field"`
			Value   *string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.EntryID == "" {
			http.Error(w, "entry_id required", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)

		var err error
		switch body.Field {
		case "category":
			if body.Value == nil {
				http.Error(w, "value required", http.StatusBadRequest)
				return
			}
			err = eng.SetCategory(r.Context(), body.EntryID, entries.EntryType(*body.Value))
		case "note":
			var note string
			if body.Value != nil {
				note = *body.Value
			}
			err = eng.SetNote(r.Context(), body.EntryID, note)
		case "title":
			if body.Value == nil {
				http.Error(w, "value required", http.StatusBadRequest)
				return
			}
			err = eng.SetTitle(r.Context(), body.EntryID, *body.Value)
		case "start_time":
			ts, perr := parseTimeValue(body.Value)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			err = eng.SetStartTime(r.Context(), body.EntryID, ts)
		case "end_time":
			ts, perr := parseTimeValue(body.Value)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			err = eng.SetEndTime(r.Context(), body.EntryID, ts)
		default:
			http.Error(w, "unknown field", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "entry_updated", map[string]any{
			"entry_id": body.EntryID,
			"field":    body.Field,
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// ToggleCompleteHandler flips a task's completion.
// POST /entries/complete {entry_id}
func ToggleCompleteHandler(mgr *entries.Manager, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EntryID string `json:"entry_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		if err := eng.ToggleComplete(r.Context(), body.EntryID); err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "entry_completed", map[string]any{
			"entry_id": body.EntryID,
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// DeleteEntryHandler removes an entry for good.
// POST /entries/delete {entry_id}
func DeleteEntryHandler(mgr *entries.Manager, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EntryID string `json:"entry_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		if err := eng.Delete(r.Context(), body.EntryID); err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "entry_deleted", map[string]any{
			"entry_id": body.EntryID,
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// ReorderHandler applies a full manual reordering. Optimistic: the local
// collection is already reordered when the response goes out; it only
// reverts if a remote position update failed.
// POST /entries/reorder {entry_ids: [...]}
func ReorderHandler(mgr *entries.Manager, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EntryIDs []string `json:"entry_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if len(body.EntryIDs) == 0 {
			http.Error(w, "entry_ids required", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)

		// a reorder is the whole collection, not a slice of it: a subset
		// would silently shrink local state until the next reload
		if len(body.EntryIDs) != len(eng.Snapshot()) {
			http.Error(w, "reorder must list every entry exactly once", http.StatusBadRequest)
			return
		}
		seen := make(map[string]bool, len(body.EntryIDs))
		ordered := make([]entries.Entry, 0, len(body.EntryIDs))
		for _, id := range body.EntryIDs {
			if seen[id] {
				http.Error(w, "duplicate entry id "+id, http.StatusBadRequest)
				return
			}
			seen[id] = true
			en, ok := eng.Get(id)
			if !ok {
				http.Error(w, "unknown entry id "+id, http.StatusBadRequest)
				return
			}
			ordered = append(ordered, en)
		}

		if err := eng.Reorder(r.Context(), ordered); err != nil {
			writeEngineError(w, err)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "entries_reordered", map[string]any{
			"entry_count": len(ordered),
		}, analytics.SourceEventKeyFromRequest(r))

		writeCollection(w, eng)
	}
}

// -------------------------------
// REMINDERS
// -------------------------------

// RemindHandler resolves free-form time text for an entry and arms a
// same-day one-shot reminder.
// POST /entries/remind {entry_id, time_text, offset_minutes}
func RemindHandler(mgr *entries.Manager, sched *reminder.Scheduler, logger *analytics.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			EntryID       string `json:"entry_id"`
			TimeText      string `json:"time_text"`
			OffsetMinutes int    `json:"offset_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		eng := mgr.ForUser(r.Context(), uid)
		en, ok := eng.Get(body.EntryID)
		if !ok {
			http.Error(w, "entry not found", http.StatusNotFound)
			return
		}

		res, scheduled, err := sched.Set(en.Text, body.TimeText, body.OffsetMinutes)
		if err != nil {
			// both reminder errors block the request entirely
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = logger.Log(r.Context(), env, "reminder_set", map[string]any{
			"entry_id":       body.EntryID,
			"offset_minutes": body.OffsetMinutes,
			"same_day":       res.SameDay,
			"scheduled":      scheduled,
		}, analytics.SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"at":        res.At,
			"sameDay":   res.SameDay,
			"scheduled": scheduled,
		})
	}
}

func parseTimeValue(v *string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, errors.New("value must be an RFC3339 timestamp or null")
	}
	return &ts, nil
}
