// Package thread reconciles the backend's polled message log with locally
// streamed provisional messages into one stable, ordered view per thread.
package thread

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/pkg/api"
)

// Kind classifies a conversation event.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindTool      Kind = "tool"
	KindStatus    Kind = "status"
	KindSystem    Kind = "system"
)

// TempIDPrefix marks client-generated ids that have not been confirmed by
// the server yet.
const TempIDPrefix = "temp-"

// NewTempID returns a provisional message id.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// Message is the canonical message shape used by the reconciled view.
type Message struct {
	// ID is the server-assigned id. Empty or temp-prefixed for provisional
	// local entries.
	ID        string     `json:"message_id"`
	ThreadID  string     `json:"thread_id"`
	Kind      Kind       `json:"type"`
	IsLLM     bool       `json:"is_llm_message"`
	Content   string     `json:"content"`
	Metadata  string     `json:"metadata"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	AgentID   string     `json:"agent_id,omitempty"`
	Agent     *api.Agent `json:"agents,omitempty"`
}

// Provisional reports whether the message has not been confirmed by the
// server.
func (m Message) Provisional() bool {
	return m.ID == "" || strings.HasPrefix(m.ID, TempIDPrefix)
}

// Normalize converts a raw backend message into the canonical shape,
// defaulting every field the backend may omit.
func Normalize(threadID string, raw api.ThreadMessage, now time.Time) Message {
	kind := Kind(raw.Type)
	if kind == "" {
		kind = KindSystem
	}

	tid := raw.ThreadID
	if tid == "" {
		tid = threadID
	}

	metadata := raw.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	return Message{
		ID:        raw.EffectiveID(),
		ThreadID:  tid,
		Kind:      kind,
		IsLLM:     raw.IsLLMMessage,
		Content:   raw.Content,
		Metadata:  metadata,
		CreatedAt: parseTime(raw.CreatedAt, now),
		UpdatedAt: parseTime(raw.UpdatedAt, now),
		AgentID:   raw.AgentID,
		Agent:     raw.Agents,
	}
}

func parseTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return fallback
	}
	return t
}
