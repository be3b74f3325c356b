// Package ingest turns raw classifier output into validated entries. The
// input is wholly untrusted: it may be JSON wrapped in prose, and every
// field in it is checked or repaired before anything reaches the store.
package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"clarity-backend/internal/entries"
)

// ValidationError is fatal to one ingestion call: no entries are admitted.
// Raw carries the offending text for diagnostics, not for retries.
type ValidationError struct {
	Reason string
	Raw    string
}

func (e *ValidationError) Error() string {
	return "invalid classifier output: " + e.Reason
}

// ProtoEntry is an entry-shaped record before id/createdAt assignment.
type ProtoEntry struct {
	Text      string
	Type      entries.EntryType
	Priority  int
	Note      string
	StartTime *time.Time
	EndTime   *time.Time
}

type rawItem struct {
	Text      any `json:"text"`
	Type      any `json:"type"`
	Priority  any `json:"priority"`
	Note      any `json:"note"`
	StartTime any `json:"startTime"`
	EndTime   any `json:"endTime"`
}

// Parse extracts, validates and repairs classifier output.
//
// The required-field check is total: one bad element rejects the whole
// blob. The repair pass that follows never fails; it only narrows data
// (drops unparsable timestamps, drops end<=start, clamps priority).
func Parse(raw string) ([]ProtoEntry, error) {
	payloadText := extractObject(raw)

	var payload struct {
		Entries []rawItem `json:"entries"`
	}
	if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
		return nil, &ValidationError{Reason: "not a JSON object: " + err.Error(), Raw: raw}
	}
	if payload.Entries == nil {
		return nil, &ValidationError{Reason: `missing "entries" array`, Raw: raw}
	}

	protos := make([]ProtoEntry, 0, len(payload.Entries))
	for i, item := range payload.Entries {
		text, ok := item.Text.(string)
		if !ok || text == "" {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("entry %d: text must be a non-empty string", i),
				Raw:    raw,
			}
		}
		typeStr, ok := item.Type.(string)
		if !ok {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("entry %d: type must be a string", i),
				Raw:    raw,
			}
		}
		prio, ok := item.Priority.(float64)
		if !ok {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("entry %d: priority must be a number", i),
				Raw:    raw,
			}
		}
		protos = append(protos, repair(i, ProtoEntry{
			Text:      text,
			Type:      entries.EntryType(typeStr),
			Priority:  int(prio),
			Note:      stringOrEmpty(item.Note),
			StartTime: timestampOrNil(i, "startTime", item.StartTime),
			EndTime:   timestampOrNil(i, "endTime", item.EndTime),
		}))
	}
	return protos, nil
}

// repair is the total (non-failing) narrowing pass.
func repair(i int, p ProtoEntry) ProtoEntry {
	if !entries.ValidType(p.Type) {
		log.Printf("[WARN] repair: entry %d: unknown type %q, keeping as note", i, p.Type)
		p.Type = entries.TypeNote
	}
	if p.Priority < entries.PriorityMin {
		log.Printf("[WARN] repair: entry %d: priority %d clamped", i, p.Priority)
		p.Priority = entries.PriorityMin
	}
	if p.Priority > entries.PriorityMax {
		log.Printf("[WARN] repair: entry %d: priority %d clamped", i, p.Priority)
		p.Priority = entries.PriorityMax
	}
	if p.StartTime == nil && p.EndTime != nil {
		log.Printf("[WARN] repair: entry %d: endTime without startTime, dropped", i)
		p.EndTime = nil
	}
	if p.StartTime != nil && p.EndTime != nil && !p.EndTime.After(*p.StartTime) {
		log.Printf("[WARN] repair: entry %d: endTime before startTime, dropped", i)
		p.EndTime = nil
	}
	return p
}

// Finalize assigns id and createdAt. These are never accepted from the
// untrusted source; they are minted here, at the trust boundary.
func Finalize(protos []ProtoEntry, now time.Time) []entries.Entry {
	out := make([]entries.Entry, 0, len(protos))
	for _, p := range protos {
		out = append(out, entries.Entry{
			ID:        uuid.NewString(),
			Text:      p.Text,
			Type:      p.Type,
			Priority:  p.Priority,
			Note:      p.Note,
			CreatedAt: now.UTC(),
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
		})
	}
	return out
}

// Run is Parse + Finalize.
func Run(raw string, now time.Time) ([]entries.Entry, error) {
	protos, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Finalize(protos, now), nil
}

// extractObject cuts the substring between the first '{' and the last '}'.
// Classifier output is often wrapped in prose; when no brace pair exists the
// whole blob is handed to the JSON parser as-is.
func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end != -1 && start < end {
		return raw[start : end+1]
	}
	return raw
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timestampOrNil(i int, field string, v any) *time.Time {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		log.Printf("[WARN] repair: entry %d: %s is not a string, dropped", i, field)
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	log.Printf("[WARN] repair: entry %d: %s %q is not a timestamp, dropped", i, field, s)
	return nil
}
