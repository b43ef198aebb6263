package toolcall

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/thread"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func assistantMsg(id, content string, at time.Time) thread.Message {
	return thread.Message{
		ID:        id,
		Kind:      thread.KindAssistant,
		Content:   content,
		Metadata:  "{}",
		CreatedAt: at,
	}
}

func toolMsg(id, assistantID, content string, at time.Time) thread.Message {
	return thread.Message{
		ID:        id,
		Kind:      thread.KindTool,
		Content:   content,
		Metadata:  fmt.Sprintf(`{"assistant_message_id":%q}`, assistantID),
		CreatedAt: at,
	}
}

func structuredToolContent(toolName string, success bool, output string) string {
	return fmt.Sprintf(`{"tool_name":%q,"result":{"success":%t,"output":%q}}`, toolName, success, output)
}

func TestSetMessagesDerivesTerminalRecord(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", `{"content":"<create_tasks>plan</create_tasks>"}`, testBase),
		toolMsg("t1", "a1", structuredToolContent("create_tasks", true, "3 tasks created"), testBase.Add(time.Second)),
	}, api.RunStatusRunning)

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "create-tasks", records[0].ToolName)
	assert.Equal(t, "a1", records[0].AssistantID)
	assert.True(t, records[0].Result.Success)
	assert.False(t, records[0].Streaming())
}

func TestSetMessagesPreservesEncounterOrder(t *testing.T) {
	t.Parallel()

	// The second call completed before the first; the list still follows
	// message order, not result timestamps.
	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		assistantMsg("a2", "<read-file>main.go</read-file>", testBase.Add(time.Second)),
		toolMsg("t2", "a2", structuredToolContent("read_file", true, "package main"), testBase.Add(2*time.Second)),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(10*time.Second)),
	}, api.RunStatusIdle)

	records := p.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "execute-command", records[0].ToolName)
	assert.Equal(t, "read-file", records[1].ToolName)
}

func TestSetMessagesSkipsUnpairedAssistants(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		assistantMsg("", "streaming without id", testBase.Add(time.Second)),
	}, api.RunStatusRunning)

	assert.Empty(t, p.Records())
}

func TestSetMessagesToolNameFallsBackToXMLTag(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", `<str-replace path="x.go">old</str-replace>`, testBase),
		toolMsg("t1", "a1", `ToolResult(success=True, output="replaced")`, testBase.Add(time.Second)),
	}, api.RunStatusIdle)

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "str-replace", records[0].ToolName)
	assert.True(t, records[0].Result.Success)
}

func TestSetMessagesToolNameFromToolCallsDescriptor(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", `{"tool_calls":[{"function":{"name":"Web_Search"}}]}`, testBase),
		toolMsg("t1", "a1", "results: none found", testBase.Add(time.Second)),
	}, api.RunStatusIdle)

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "web-search", records[0].ToolName)
}

func TestSetMessagesResultlessStructuredPayloadIsSuccess(t *testing.T) {
	t.Parallel()

	// Structured tool payload with no result field; the parameters mention
	// "error" but that must not flip the record to failure.
	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<web-search>error handling in Go</web-search>", testBase),
		toolMsg("t1", "a1", `{"tool_name":"web_search","parameters":{"query":"error handling in Go"}}`, testBase.Add(time.Second)),
	}, api.RunStatusIdle)

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "web-search", records[0].ToolName)
	assert.True(t, records[0].Result.Success)
}

func TestSetMessagesKeepsSliceWhenUnchanged(t *testing.T) {
	t.Parallel()

	messages := []thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
	}

	p := NewProjector()
	p.SetMessages(messages, api.RunStatusIdle)
	first := p.Records()

	p.SetMessages(messages, api.RunStatusIdle)
	second := p.Records()

	require.Len(t, second, 1)
	assert.Same(t, &first[0], &second[0])
}

func TestStreamDeltaAppendsStreamingRecord(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{XMLTagName: "move_to", Arguments: "src/main.go"})

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "move-to", records[0].ToolName)
	assert.True(t, records[0].Streaming())
	assert.True(t, p.PanelOpen())
	assert.Equal(t, 0, p.CurrentIndex())
}

func TestStreamDeltaUpdatesInPlace(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Name: "execute_command", Arguments: "ls"})
	p.StreamDelta(api.ToolCallDelta{Name: "execute_command", Arguments: "ls -la"})

	records := p.Records()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Invocation.Content, "ls -la")
}

func TestStreamDeltaNamelessFragment(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Arguments: `{"partial":`})

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "unknown-tool", records[0].ToolName)
}

func TestStreamDeltaIgnoredAfterUserClose(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.OpenPanel()
	p.TogglePanel() // user closes

	p.StreamDelta(api.ToolCallDelta{Name: "execute_command", Arguments: "ls"})

	assert.Empty(t, p.Records())
	assert.False(t, p.PanelOpen())
}

func TestStreamDeltaMovesFocusUnlessUserNavigated(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Name: "tool_a", Arguments: "1"})
	p.StreamDelta(api.ToolCallDelta{Name: "tool_b", Arguments: "2"})
	assert.Equal(t, 1, p.CurrentIndex())

	p.Navigate(0)
	p.StreamDelta(api.ToolCallDelta{Name: "tool_c", Arguments: "3"})
	assert.Equal(t, 0, p.CurrentIndex(), "manual navigation holds focus")
	assert.Len(t, p.Records(), 3)
}

func TestTaskToolsShareOneLiveRecord(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Name: "create_tasks", Arguments: "task list"})
	p.StreamDelta(api.ToolCallDelta{Name: "update_tasks", Arguments: "mark done"})
	p.StreamDelta(api.ToolCallDelta{Name: "view_tasks", Arguments: ""})

	records := p.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "view-tasks", records[0].ToolName)
}

func TestStreamingRecordRetiredByExactMatch(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{XMLTagName: "execute-command", Arguments: "<execute-command>ls</execute-command>"})
	require.Len(t, p.Records(), 1)

	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
	}, api.RunStatusRunning)

	records := p.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Streaming())
}

func TestStreamingRecordRetiredWithinWindow(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))

	// Streamed content differs from the terminal invocation, but the
	// timestamps are close enough for the fuzzy retirement.
	p.StreamDelta(api.ToolCallDelta{XMLTagName: "execute-command", Arguments: "ls -"})
	require.Len(t, p.Records(), 1)

	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls -la</execute-command>", testBase.Add(10*time.Second)),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(11*time.Second)),
	}, api.RunStatusRunning)

	records := p.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Streaming())
}

func TestStreamingRecordSurvivesOutsideWindow(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{XMLTagName: "execute-command", Arguments: "sleep 600"})

	// A same-named terminal record from long ago does not retire the new
	// streaming one.
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase.Add(-5*time.Minute)),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(-5*time.Minute+time.Second)),
	}, api.RunStatusRunning)

	records := p.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].Streaming())
	assert.True(t, records[1].Streaming())
}

func TestAutoOpenOnce(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	messages := []thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
	}

	p.SetMessages(messages, api.RunStatusIdle)
	assert.True(t, p.PanelOpen(), "panel auto-opens on first terminal record")

	p.TogglePanel() // user closes
	p.SetMessages(append(messages,
		assistantMsg("a2", "<read-file>x</read-file>", testBase.Add(2*time.Second)),
		toolMsg("t2", "a2", structuredToolContent("read_file", true, "data"), testBase.Add(3*time.Second)),
	), api.RunStatusIdle)

	assert.False(t, p.PanelOpen(), "auto-open never fires again after a user close")
}

func TestNoAutoOpenOnNarrowViewport(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithNarrowViewport(true))
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
	}, api.RunStatusIdle)

	assert.False(t, p.PanelOpen())
}

func TestRunningFocusFollowsLatest(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	messages := []thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
		assistantMsg("a2", "<read-file>x</read-file>", testBase.Add(2*time.Second)),
		toolMsg("t2", "a2", structuredToolContent("read_file", true, "data"), testBase.Add(3*time.Second)),
	}
	p.SetMessages(messages, api.RunStatusRunning)

	assert.Equal(t, 1, p.CurrentIndex())
}

func TestUserNavigationResetsOnIdle(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	messages := []thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
		assistantMsg("a2", "<read-file>x</read-file>", testBase.Add(2*time.Second)),
		toolMsg("t2", "a2", structuredToolContent("read_file", true, "data"), testBase.Add(3*time.Second)),
	}

	// First derivation auto-opens the panel and focuses the newest record.
	p.SetMessages(messages, api.RunStatusIdle)
	require.True(t, p.PanelOpen())
	p.Navigate(0)

	// While running, manual focus holds.
	p.SetMessages(messages, api.RunStatusRunning)
	assert.Equal(t, 0, p.CurrentIndex())

	// Idle clears the flag; the next derivation may snap again.
	p.SetMessages(messages, api.RunStatusIdle)
	p.SetMessages(messages, api.RunStatusRunning)
	assert.Equal(t, 1, p.CurrentIndex())
}

func TestClickByAssistantID(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
		assistantMsg("a2", "<read-file>x</read-file>", testBase.Add(2*time.Second)),
		toolMsg("t2", "a2", structuredToolContent("read_file", true, "data"), testBase.Add(3*time.Second)),
	}, api.RunStatusIdle)

	p.Click("a1", "execute-command")
	assert.Equal(t, 0, p.CurrentIndex())
	assert.True(t, p.PanelOpen())
	assert.Empty(t, p.TakeNotice())
}

func TestClickPositionalFallback(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))

	// a2's result has not landed, so a2 is not in the id map, but it is the
	// second assistant message and a second (streaming) record exists.
	p.SetMessages([]thread.Message{
		assistantMsg("a1", "<execute-command>ls</execute-command>", testBase),
		toolMsg("t1", "a1", structuredToolContent("execute_command", true, "ok"), testBase.Add(time.Second)),
		assistantMsg("a2", "<web-search>golang</web-search>", testBase.Add(2*time.Second)),
	}, api.RunStatusRunning)
	p.StreamDelta(api.ToolCallDelta{XMLTagName: "web-search", Arguments: "golang"})

	p.Click("a2", "web-search")
	assert.Equal(t, 1, p.CurrentIndex())
	assert.Empty(t, p.TakeNotice())
}

func TestClickMissSetsNotice(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.Click("nonexistent", "whatever")
	assert.NotEmpty(t, p.TakeNotice())
	assert.Empty(t, p.TakeNotice(), "notice is cleared after being taken")
}

func TestClickEmptyIDSetsNotice(t *testing.T) {
	t.Parallel()

	p := NewProjector()
	p.Click("", "execute-command")
	assert.NotEmpty(t, p.TakeNotice())
}

func TestNavigateBounds(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Name: "tool_a", Arguments: "1"})

	p.Navigate(-1)
	assert.Equal(t, 0, p.CurrentIndex())
	p.Navigate(5)
	assert.Equal(t, 0, p.CurrentIndex())
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()

	p := NewProjector(WithProjectorClock(func() time.Time { return testBase }))
	p.StreamDelta(api.ToolCallDelta{Name: "tool_a", Arguments: "1"})
	p.Navigate(0)
	require.NotEmpty(t, p.Records())

	p.Reset()

	assert.Empty(t, p.Records())
	assert.Equal(t, 0, p.CurrentIndex())
	assert.False(t, p.PanelOpen())
}
