package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"clarity-backend/internal/auth"
	"clarity-backend/internal/entries"
	"clarity-backend/internal/httpapi"
	"clarity-backend/internal/reminder"
	"clarity-backend/internal/store"
)

var secret = []byte("test-secret")

type fakeClassifier struct {
	out string
	err error
}

func (f fakeClassifier) Classify(ctx context.Context, text string) (string, error) {
	return f.out, f.err
}

func newManager() *entries.Manager {
	return entries.NewManager(store.NewMemory())
}

func request(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	token, err := auth.GenerateToken(secret, 1)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func do(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	auth.New(secret).Wrap(h)(rec, req)
	return rec
}

func decodeEntries(t *testing.T, rec *httptest.ResponseRecorder) []entries.Entry {
	t.Helper()
	var body struct {
		Entries []entries.Entry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Entries
}

func TestMindDumpPersistsEntries(t *testing.T) {
	mgr := newManager()
	classifier := fakeClassifier{out: "Here you go:\n" + `{"entries": [
		{"text": "buy milk", "type": "task", "priority": 2},
		{"text": "team offsite", "type": "event", "priority": 1, "startTime": "2026-09-01T10:00:00Z"}
	]}`}

	rec := do(httpapi.MindDumpHandler(mgr, classifier, nil),
		request(t, http.MethodPost, "/mind-dump", map[string]string{"text": "milk, offsite sept 1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeEntries(t, rec); len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}

	rec = do(httpapi.GetEntriesHandler(mgr), request(t, http.MethodGet, "/entries", nil))
	if got := decodeEntries(t, rec); len(got) != 2 {
		t.Errorf("entries did not persist, got %d", len(got))
	}
}

func TestMindDumpClassifierFailure(t *testing.T) {
	mgr := newManager()
	classifier := fakeClassifier{err: errors.New("upstream down")}

	rec := do(httpapi.MindDumpHandler(mgr, classifier, nil),
		request(t, http.MethodPost, "/mind-dump", map[string]string{"text": "anything"}))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestMindDumpRejectsInvalidOutput(t *testing.T) {
	mgr := newManager()
	classifier := fakeClassifier{out: "I could not categorise that."}

	rec := do(httpapi.MindDumpHandler(mgr, classifier, nil),
		request(t, http.MethodPost, "/mind-dump", map[string]string{"text": "x"}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	// nothing was admitted
	rec = do(httpapi.GetEntriesHandler(mgr), request(t, http.MethodGet, "/entries", nil))
	if got := decodeEntries(t, rec); len(got) != 0 {
		t.Errorf("rejected dump must not persist anything, got %d entries", len(got))
	}
}

func TestMindDumpRequiresText(t *testing.T) {
	rec := do(httpapi.MindDumpHandler(newManager(), fakeClassifier{}, nil),
		request(t, http.MethodPost, "/mind-dump", map[string]string{"text": ""}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAddTaskAndUpdate(t *testing.T) {
	mgr := newManager()

	rec := do(httpapi.AddTaskHandler(mgr, nil),
		request(t, http.MethodPost, "/entries", map[string]string{"text": "write report"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeEntries(t, rec)
	if len(created) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(created))
	}
	id := created[0].ID

	rec = do(httpapi.UpdateEntryHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/update", map[string]any{
			"entry_id": id, "field": "note", "value": "with charts",
		}))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeEntries(t, rec); got[0].Note != "with charts" {
		t.Errorf("note not updated: %+v", got[0])
	}

	rec = do(httpapi.UpdateEntryHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/update", map[string]any{
			"entry_id": id, "field": "mood", "value": "x",
		}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: expected 400, got %d", rec.Code)
	}

	rec = do(httpapi.UpdateEntryHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/update", map[string]any{
			"entry_id": id, "field": "start_time", "value": "tomorrow-ish",
		}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp: expected 400, got %d", rec.Code)
	}

	rec = do(httpapi.UpdateEntryHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/update", map[string]any{
			"entry_id": "missing", "field": "note", "value": "x",
		}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entry: expected 404, got %d", rec.Code)
	}
}

func TestReorderUnknownID(t *testing.T) {
	mgr := newManager()
	rec := do(httpapi.ReorderHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/reorder", map[string]any{
			"entry_ids": []string{"ghost"},
		}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReorderRejectsPartialList(t *testing.T) {
	mgr := newManager()

	for _, text := range []string{"one", "two", "three"} {
		rec := do(httpapi.AddTaskHandler(mgr, nil),
			request(t, http.MethodPost, "/entries", map[string]string{"text": text}))
		if rec.Code != http.StatusOK {
			t.Fatalf("add %q: %d", text, rec.Code)
		}
	}

	rec := do(httpapi.GetEntriesHandler(mgr), request(t, http.MethodGet, "/entries", nil))
	current := decodeEntries(t, rec)

	// a subset must not be accepted: it would shrink the collection
	rec = do(httpapi.ReorderHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/reorder", map[string]any{
			"entry_ids": []string{current[0].ID},
		}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("partial reorder: expected 400, got %d", rec.Code)
	}

	// neither must a list padded with a repeated id
	rec = do(httpapi.ReorderHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/reorder", map[string]any{
			"entry_ids": []string{current[0].ID, current[0].ID, current[1].ID},
		}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicated id: expected 400, got %d", rec.Code)
	}

	rec = do(httpapi.GetEntriesHandler(mgr), request(t, http.MethodGet, "/entries", nil))
	if got := decodeEntries(t, rec); len(got) != 3 {
		t.Errorf("rejected reorders must leave the collection intact, got %d entries", len(got))
	}
}

func TestReorderRoundTrip(t *testing.T) {
	mgr := newManager()

	for _, text := range []string{"one", "two", "three"} {
		rec := do(httpapi.AddTaskHandler(mgr, nil),
			request(t, http.MethodPost, "/entries", map[string]string{"text": text}))
		if rec.Code != http.StatusOK {
			t.Fatalf("add %q: %d", text, rec.Code)
		}
	}

	rec := do(httpapi.GetEntriesHandler(mgr), request(t, http.MethodGet, "/entries", nil))
	current := decodeEntries(t, rec)
	ids := []string{current[2].ID, current[0].ID, current[1].ID}

	rec = do(httpapi.ReorderHandler(mgr, nil),
		request(t, http.MethodPost, "/entries/reorder", map[string]any{"entry_ids": ids}))
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder: status %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeEntries(t, rec)
	for i, id := range ids {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
		if got[i].SortOrder == nil || *got[i].SortOrder != i {
			t.Errorf("position %d: bad sort order %v", i, got[i].SortOrder)
		}
	}
}

func TestGroupedViewEndpoint(t *testing.T) {
	mgr := newManager()
	rec := do(httpapi.AddTaskHandler(mgr, nil),
		request(t, http.MethodPost, "/entries", map[string]string{"text": "solo task"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("add: %d", rec.Code)
	}

	rec = do(httpapi.GroupedViewHandler(mgr),
		request(t, http.MethodGet, "/entries/view?scope=day&mode=priority", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("view: status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Scope  string `json:"scope"`
		Mode   string `json:"mode"`
		Groups []struct {
			Label   string          `json:"label"`
			Entries []entries.Entry `json:"entries"`
		} `json:"groups"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Scope != "day" || body.Mode != "priority" {
		t.Errorf("echoed scope/mode wrong: %+v", body)
	}
	if len(body.Groups) != 1 || len(body.Groups[0].Entries) != 1 {
		t.Errorf("expected the unscheduled task in one group, got %+v", body.Groups)
	}

	rec = do(httpapi.GroupedViewHandler(mgr),
		request(t, http.MethodGet, "/entries/view?scope=fortnight", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad scope: expected 400, got %d", rec.Code)
	}
}

func TestRemindRejectsBadTimeText(t *testing.T) {
	mgr := newManager()
	sched := reminder.NewScheduler(reminder.NewResolver())

	rec := do(httpapi.AddTaskHandler(mgr, nil),
		request(t, http.MethodPost, "/entries", map[string]string{"text": "call mom"}))
	id := decodeEntries(t, rec)[0].ID

	rec = do(httpapi.RemindHandler(mgr, sched, nil),
		request(t, http.MethodPost, "/entries/remind", map[string]any{
			"entry_id": id, "time_text": "asdlkj",
		}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(httpapi.RemindHandler(mgr, sched, nil),
		request(t, http.MethodPost, "/entries/remind", map[string]any{
			"entry_id": "ghost", "time_text": "at 5pm",
		}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entry: expected 404, got %d", rec.Code)
	}
}

func TestMissingTokenUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	rec := httptest.NewRecorder()
	auth.New(secret).Wrap(httpapi.GetEntriesHandler(newManager()))(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
