package client

import "github.com/agentdeck/agentdeck/pkg/api"

// Event is one item on the live run stream.
type Event interface {
	isEvent()
}

// StatusEvent reports a run lifecycle change.
type StatusEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

func Status(status, runID string) Event {
	return &StatusEvent{
		Type:   "status",
		Status: status,
		RunID:  runID,
	}
}

func (e *StatusEvent) isEvent() {}

// AssistantDeltaEvent carries a chunk of streamed assistant content.
type AssistantDeltaEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	AgentID   string `json:"agent_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func AssistantDelta(content, agentID, messageID string) Event {
	return &AssistantDeltaEvent{
		Type:      "assistant",
		Content:   content,
		AgentID:   agentID,
		MessageID: messageID,
	}
}

func (e *AssistantDeltaEvent) isEvent() {}

// ToolCallDeltaEvent carries a partial tool-call argument fragment.
type ToolCallDeltaEvent struct {
	Type  string            `json:"type"`
	Delta api.ToolCallDelta `json:"tool_call"`
}

func ToolDelta(delta api.ToolCallDelta) Event {
	return &ToolCallDeltaEvent{
		Type:  "tool_call",
		Delta: delta,
	}
}

func (e *ToolCallDeltaEvent) isEvent() {}

// MessageEvent carries a finalized message pushed over the stream.
type MessageEvent struct {
	Type    string            `json:"type"`
	Message api.ThreadMessage `json:"message"`
}

func MessageUpsert(msg api.ThreadMessage) Event {
	return &MessageEvent{
		Type:    "message",
		Message: msg,
	}
}

func (e *MessageEvent) isEvent() {}

// ErrorEvent reports a stream-side failure.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func Error(msg string) Event {
	return &ErrorEvent{
		Type:  "error",
		Error: msg,
	}
}

func (e *ErrorEvent) isEvent() {}

// StreamClosedEvent is the final event before the channel closes.
type StreamClosedEvent struct {
	Type string `json:"type"`
}

func StreamClosed() Event {
	return &StreamClosedEvent{Type: "stream_closed"}
}

func (e *StreamClosedEvent) isEvent() {}
