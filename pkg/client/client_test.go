package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/api"
)

func TestGetMessages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/threads/t1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"message_id":"m1","thread_id":"t1","type":"user","content":"hello"}]`)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	messages, err := c.GetMessages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].EffectiveID())
	assert.Equal(t, "user", messages[0].Type)
}

func TestGetAgentRuns(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/threads/t1/agent-runs", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"run-1","thread_id":"t1","status":"running"}]`)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	runs, err := c.GetAgentRuns(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, api.RunStatusRunning, runs[0].Status)
}

func TestGetProjectSandboxFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "object sandbox",
			body: `{"project_id":"p1","sandbox":{"id":"sb-1"}}`,
			want: "sb-1",
		},
		{
			name: "bare string sandbox",
			body: `{"project_id":"p1","sandbox":"sb-2"}`,
			want: "sb-2",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			c, err := New(server.URL)
			require.NoError(t, err)

			project, err := c.GetProject(context.Background(), "p1")
			require.NoError(t, err)
			require.NotNil(t, project.Sandbox)
			assert.Equal(t, tc.want, project.Sandbox.ID)
		})
	}
}

func TestDoRequestAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"thread not found"}`)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.GetThread(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thread not found")
}

func TestStreamRunDecodesEvents(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent-runs/run-1/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"status\":\"running\",\"run_id\":\"run-1\"}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"assistant\",\"content\":\"Hel\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"partial_tool_call\",\"tool_call\":{\"xml_tag_name\":\"execute-command\",\"arguments\":\"ls\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"future_event_kind\",\"payload\":true}\n\n")
		fmt.Fprint(w, "data: not json at all\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message\",\"message\":{\"message_id\":\"m9\",\"type\":\"assistant\",\"content\":\"Hello\"}}\n\n")
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	events, err := c.StreamRun(context.Background(), "run-1")
	require.NoError(t, err)

	var got []Event
	for e := range events {
		got = append(got, e)
	}

	require.Len(t, got, 5)

	status, ok := got[0].(*StatusEvent)
	require.True(t, ok)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "run-1", status.RunID)

	delta, ok := got[1].(*AssistantDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "Hel", delta.Content)

	tool, ok := got[2].(*ToolCallDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "execute-command", tool.Delta.EffectiveName())
	assert.Equal(t, "ls", tool.Delta.Arguments)

	msg, ok := got[3].(*MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m9", msg.Message.EffectiveID())

	_, ok = got[4].(*StreamClosedEvent)
	assert.True(t, ok)
}

func TestStreamRunErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"run exploded"}`)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.StreamRun(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run exploded")
}

func TestStreamRunAbandonedConsumer(t *testing.T) {
	t.Parallel()

	// Enough events to fill the channel buffer, then EOF.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < streamBufferSize; i++ {
			fmt.Fprint(w, "data: {\"type\":\"status\",\"status\":\"running\"}\n\n")
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(server.URL)
	require.NoError(t, err)

	events, err := c.StreamRun(ctx, "run-1")
	require.NoError(t, err)

	// Let the stream end with the buffer full, then walk away.
	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(100 * time.Millisecond)

	// The decode goroutine must have given up on the trailing send: the
	// channel holds only the buffered events and is already closed.
	count := 0
	for e := range events {
		if _, closed := e.(*StreamClosedEvent); closed {
			t.Fatal("closing event sent after the consumer was cancelled")
		}
		count++
	}
	assert.NotZero(t, count)
}

func TestStreamRunContextCancel(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"status\":\"running\"}\n\n")
		w.(http.Flusher).Flush()
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(server.URL)
	require.NoError(t, err)

	events, err := c.StreamRun(ctx, "run-1")
	require.NoError(t, err)

	first := <-events
	_, ok := first.(*StatusEvent)
	require.True(t, ok)

	cancel()
	for range events {
		// drain until close
	}
}
