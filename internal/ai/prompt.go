package ai

import (
	"fmt"
	"strings"
)

const classifySystemPrompt = `You analyze text dumps from a personal planning app.

Categorize each distinct thought or item into one of the following types:
'task', 'event', 'idea', 'feeling', or 'note'.

For each item categorized as 'task' or 'event', also determine a likely
priority based on typical daily schedules or logical sequence. Assign a
numerical priority: 1 for morning, 2 for midday, 3 for afternoon, 4 for
evening, 5 for anytime/flexible. For other types ('idea', 'feeling',
'note'), assign priority 5.

If an item mentions a concrete date or time, include it as an ISO-8601
"startTime" (and "endTime" when a range is given). Never invent times.

Structure the output as a JSON object with a single key "entries", which is
an array of objects. Each object must have a "text" key with the original
text snippet, a "type" key with its determined category, and a "priority"
key with the assigned numerical priority (1-5). Ensure the output is valid
JSON. Output nothing but the JSON object.`

// BuildClassifyPrompt frames the user's dump for the model.
func BuildClassifyPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Text dump:\n---\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n---\n\nJSON Output:")
	return b.String()
}

// Redacted returns a short, log-safe description of a dump (length only;
// raw user text never goes to logs or analytics).
func Redacted(text string) string {
	return fmt.Sprintf("<%d chars>", len(text))
}
