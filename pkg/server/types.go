package server

import "github.com/agentdeck/agentdeck/pkg/view"

// ThreadsResponse is one row of the cached thread list.
type ThreadsResponse struct {
	ThreadID     string `json:"thread_id"`
	ProjectID    string `json:"project_id,omitempty"`
	MessageCount int    `json:"num_messages"`
	UpdatedAt    string `json:"updated_at"`
	SyncedAt     string `json:"synced_at"`
}

// ViewResponse is the reconciled view served to presentation layers.
type ViewResponse struct {
	view.Snapshot
	Notice string `json:"notice,omitempty"`
}

// NavigateRequest moves panel focus manually.
type NavigateRequest struct {
	Index int `json:"index"`
}

// ClickRequest focuses the tool call behind a message reference.
type ClickRequest struct {
	AssistantMessageID string `json:"assistant_message_id"`
	ToolName           string `json:"tool_name"`
}
