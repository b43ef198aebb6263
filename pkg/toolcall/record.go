// Package toolcall derives the tool-call timeline from a reconciled message
// list, folds in live streaming deltas, and manages which call the display
// panel focuses on.
package toolcall

import (
	"strings"
	"time"
)

// StreamingSentinel marks a record whose result has not been produced yet.
const StreamingSentinel = "STREAMING"

// Invocation is the assistant-side half of a tool call.
type Invocation struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the tool-side half. Content is StreamingSentinel while the call
// is still in flight.
type Result struct {
	Content   string    `json:"content"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Record pairs one assistant invocation with its (possibly pending) result.
type Record struct {
	ToolName    string     `json:"tool_name"`
	AssistantID string     `json:"assistant_message_id,omitempty"`
	Invocation  Invocation `json:"invocation"`
	Result      Result     `json:"result"`
}

// Streaming reports whether the record has no terminal result yet.
func (r Record) Streaming() bool {
	return r.Result.Content == StreamingSentinel
}

// NormalizeToolName converts backend tool identifiers to the canonical
// lowercase-hyphenated form used everywhere in the view.
func NormalizeToolName(name string) string {
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

// taskToolNames is the family of task-list-management tools that share a
// single live record in the panel; a new delta for any of them updates the
// existing record instead of appending a duplicate.
var taskToolNames = map[string]struct{}{
	"create-tasks": {},
	"update-tasks": {},
	"view-tasks":   {},
}

func isTaskTool(normalized string) bool {
	_, ok := taskToolNames[normalized]
	return ok
}
