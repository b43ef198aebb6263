// Package api defines the wire types exchanged with the agent backend and
// the types agentdeck itself serves to presentation layers.
package api

import "time"

// ThreadMessage is the raw message schema returned by the backend. Older
// deployments populate ID instead of MessageID, and several fields can be
// missing entirely; pkg/thread normalizes all of that.
type ThreadMessage struct {
	MessageID    string `json:"message_id,omitempty"`
	ID           string `json:"id,omitempty"`
	ThreadID     string `json:"thread_id"`
	Type         string `json:"type"`
	IsLLMMessage bool   `json:"is_llm_message"`
	Content      string `json:"content"`
	Metadata     string `json:"metadata,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Agents       *Agent `json:"agents,omitempty"`
}

// EffectiveID returns the server id for a message, preferring the modern
// message_id field over the legacy id field.
func (m ThreadMessage) EffectiveID() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return m.ID
}

// Agent is the author attribution attached to assistant messages.
type Agent struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Thread is the backend's conversation container.
type Thread struct {
	ThreadID  string    `json:"thread_id"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run statuses reported by the backend and mirrored by pkg/thread.
const (
	RunStatusIdle       = "idle"
	RunStatusConnecting = "connecting"
	RunStatusRunning    = "running"
	RunStatusError      = "error"
)

// AgentRun is one execution of an agent against a thread.
type AgentRun struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// Project carries the sandbox configuration refreshed when a run starts.
type Project struct {
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name,omitempty"`
	Sandbox   *Sandbox `json:"sandbox,omitempty"`
}

// Sandbox identifies the execution environment backing a project. The
// backend historically returned either a bare id string or this object;
// see Project.UnmarshalJSON in project.go.
type Sandbox struct {
	ID string `json:"id"`
}

// ToolCallDelta is a partial tool-call fragment pushed over the run stream.
// Name and XMLTagName are alternatives; Arguments accumulates across deltas
// for the same logical call and there is no stable id.
type ToolCallDelta struct {
	Name       string `json:"name,omitempty"`
	XMLTagName string `json:"xml_tag_name,omitempty"`
	Arguments  string `json:"arguments"`
}

// EffectiveName returns whichever of the two name fields is set.
func (d ToolCallDelta) EffectiveName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.XMLTagName
}
