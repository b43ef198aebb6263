package toolcall

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/thread"
)

// retirementWindow is the fuzzy match used to retire a streaming record when
// its terminal counterpart lands with reformatted content. Known limitation:
// when several same-named calls complete within the window, the first
// terminal record can retire a streaming record that belongs to a later
// call. Streaming deltas carry no id, so there is nothing better to match on.
const retirementWindow = 30 * time.Second

// Projector derives the tool-call list from the reconciled messages, merges
// in streaming deltas that have no message yet, and owns the panel focus
// state. Safe for concurrent use.
type Projector struct {
	mu sync.Mutex

	now          func() time.Time
	interpreters []ResultInterpreter
	narrow       bool

	records      []Record
	indexByMsgID map[string]int
	lastMessages []thread.Message

	current       int
	panelOpen     bool
	autoOpened    bool
	userNavigated bool
	userClosed    bool

	notice string

	deferred []func()
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithNarrowViewport suppresses the auto-open-once heuristic, matching the
// mobile behavior of the panel.
func WithNarrowViewport(narrow bool) ProjectorOption {
	return func(p *Projector) {
		p.narrow = narrow
	}
}

// WithInterpreters replaces the result-interpretation chain.
func WithInterpreters(interpreters ...ResultInterpreter) ProjectorOption {
	return func(p *Projector) {
		p.interpreters = interpreters
	}
}

// WithProjectorClock overrides the time source, for tests.
func WithProjectorClock(now func() time.Time) ProjectorOption {
	return func(p *Projector) {
		p.now = now
	}
}

// NewProjector creates a projector with the default interpreter chain:
// structured result field first, text heuristics second.
func NewProjector(opts ...ProjectorOption) *Projector {
	p := &Projector{
		now:          time.Now,
		interpreters: []ResultInterpreter{StructuredInterpreter{}, HeuristicInterpreter{}},
		indexByMsgID: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reset discards all state, used on thread switch.
func (p *Projector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records = nil
	p.indexByMsgID = make(map[string]int)
	p.lastMessages = nil
	p.current = 0
	p.panelOpen = false
	p.autoOpened = false
	p.userNavigated = false
	p.userClosed = false
	p.notice = ""
	p.deferred = nil
}

// SetMessages re-derives the tool-call list from the reconciled message
// array. Call it whenever the message slice identity or the run status
// changes; an unchanged derivation keeps the previous record slice.
func (p *Projector) SetMessages(messages []thread.Message, runStatus string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastMessages = messages

	terminal, index := p.derive(messages)

	streaming := p.retainedStreaming(terminal)
	merged := make([]Record, 0, len(terminal)+len(streaming))
	merged = append(merged, terminal...)
	merged = append(merged, streaming...)

	p.indexByMsgID = index
	if !recordsEqual(p.records, merged) {
		p.records = merged
	}

	if len(terminal) > 0 {
		p.applyFocusHeuristics(len(terminal)-1, runStatus)
	}

	if runStatus == api.RunStatusIdle {
		p.userNavigated = false
	}

	p.drainDeferredLocked()
}

// derive collects assistant messages with ids and pairs each with the tool
// message whose metadata points back at it. Encounter order is preserved;
// the list is deliberately not re-sorted by timestamp.
func (p *Projector) derive(messages []thread.Message) ([]Record, map[string]int) {
	var terminal []Record
	index := make(map[string]int)

	for _, msg := range messages {
		if msg.Kind != thread.KindAssistant || msg.ID == "" {
			continue
		}

		result, found := findResult(messages, msg.ID)
		if !found {
			// Call still in flight, or the result never landed. Expected.
			continue
		}

		toolName, success := p.interpret(msg, result)

		index[msg.ID] = len(terminal)
		terminal = append(terminal, Record{
			ToolName:    toolName,
			AssistantID: msg.ID,
			Invocation: Invocation{
				Content:   msg.Content,
				Timestamp: msg.CreatedAt,
			},
			Result: Result{
				Content:   result.Content,
				Success:   success,
				Timestamp: result.CreatedAt,
			},
		})
	}

	return terminal, index
}

func findResult(messages []thread.Message, assistantID string) (thread.Message, bool) {
	for _, msg := range messages {
		if msg.Kind != thread.KindTool || msg.Metadata == "" {
			continue
		}
		if assistantRef(msg.Metadata) == assistantID {
			return msg, true
		}
	}
	return thread.Message{}, false
}

// interpret resolves the tool name and success flag for a terminal pair,
// falling back through the legacy formats without ever failing the pair.
func (p *Projector) interpret(assistant, result thread.Message) (toolName string, success bool) {
	if sc, ok := parseStructured(result.Content); ok {
		toolName = NormalizeToolName(sc.name())
	} else if name := assistantToolName(assistant.Content); name != "" {
		toolName = name
	} else {
		toolName = "unknown"
	}

	return toolName, interpretSuccess(p.interpreters, result.Content)
}

// retainedStreaming returns the held streaming records that no terminal
// record supersedes. A terminal record matches on exact name+content, or on
// name alone when its invocation timestamp falls within the retirement
// window of the streaming record's.
func (p *Projector) retainedStreaming(terminal []Record) []Record {
	var retained []Record
	for _, s := range p.records {
		if !s.Streaming() {
			continue
		}
		if hasTerminalMatch(terminal, s) {
			slog.Debug("Retiring streaming tool call", "tool", s.ToolName)
			continue
		}
		retained = append(retained, s)
	}
	return retained
}

func hasTerminalMatch(terminal []Record, s Record) bool {
	for _, t := range terminal {
		if t.ToolName != s.ToolName {
			continue
		}
		if t.Invocation.Content == s.Invocation.Content {
			return true
		}
		diff := t.Invocation.Timestamp.Sub(s.Invocation.Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff < retirementWindow {
			return true
		}
	}
	return false
}

func recordsEqual(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ToolName != b[i].ToolName ||
			a[i].Invocation.Content != b[i].Invocation.Content ||
			a[i].Result.Content != b[i].Result.Content {
			return false
		}
	}
	return true
}

// applyFocusHeuristics snaps focus to the last terminal record and manages
// the auto-open-once behavior. lastTerminal is the index of the newest
// terminal record.
func (p *Projector) applyFocusHeuristics(lastTerminal int, runStatus string) {
	switch {
	case runStatus == api.RunStatusRunning && !p.userNavigated:
		p.current = lastTerminal
	case p.panelOpen && !p.userClosed && !p.userNavigated:
		p.current = lastTerminal
	case !p.panelOpen && !p.autoOpened && !p.userClosed && !p.narrow:
		p.current = lastTerminal
		p.panelOpen = true
		p.autoOpened = true
	}
}

// StreamDelta folds one streaming tool-call fragment into the list. Deltas
// are ignored entirely once the user has closed the panel.
func (p *Projector) StreamDelta(delta api.ToolCallDelta) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userClosed {
		return
	}

	toolName := NormalizeToolName(delta.EffectiveName())
	if delta.EffectiveName() == "" {
		toolName = "unknown-tool"
	}
	content := formatStreamingArguments(toolName, delta.Arguments)
	now := p.now()

	p.upsertStreamingLocked(toolName, content, now)

	// Two-phase: the focus move is scheduled after the list mutation is
	// observable, then drained before this call returns.
	if !p.userNavigated {
		p.deferred = append(p.deferred, func() {
			if len(p.records) > 0 {
				p.current = len(p.records) - 1
			}
		})
	}

	p.panelOpen = true
	p.drainDeferredLocked()
}

// upsertStreamingLocked applies the in-place-update-or-append rule,
// including the task-tool single-record special case.
func (p *Projector) upsertStreamingLocked(toolName, content string, now time.Time) {
	streamingResult := Result{
		Content:   StreamingSentinel,
		Success:   true,
		Timestamp: now,
	}

	if isTaskTool(toolName) {
		// Only one live task-list record at a time, streaming or not.
		for i := range p.records {
			if isTaskTool(p.records[i].ToolName) {
				records := make([]Record, len(p.records))
				copy(records, p.records)
				records[i].ToolName = toolName
				records[i].Invocation.Content = content
				records[i].Result = streamingResult
				p.records = records
				return
			}
		}
	}

	for i := range p.records {
		if p.records[i].ToolName == toolName && p.records[i].Streaming() {
			records := make([]Record, len(p.records))
			copy(records, p.records)
			records[i].Invocation.Content = content
			records[i].Result = streamingResult
			p.records = records
			return
		}
	}

	records := make([]Record, 0, len(p.records)+1)
	records = append(records, p.records...)
	records = append(records, Record{
		ToolName: toolName,
		Invocation: Invocation{
			Content:   content,
			Timestamp: now,
		},
		Result: streamingResult,
	})
	p.records = records
}

// Click focuses the tool call invoked by the given assistant message. Falls
// back to a positional match when the id lookup misses; a double miss sets a
// transient notice instead of failing.
func (p *Projector) Click(assistantMessageID, toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if assistantMessageID == "" {
		p.notice = "cannot view details: assistant message id is missing"
		return
	}

	p.userClosed = false
	p.userNavigated = true

	if idx, ok := p.indexByMsgID[assistantMessageID]; ok {
		p.current = idx
		p.panelOpen = true
		return
	}

	// Positional fallback: nth assistant message maps to nth tool call.
	pos := -1
	n := 0
	for _, msg := range p.lastMessages {
		if msg.Kind != thread.KindAssistant || msg.ID == "" {
			continue
		}
		if msg.ID == assistantMessageID {
			pos = n
			break
		}
		n++
	}
	if pos >= 0 && pos < len(p.records) {
		p.current = pos
		p.panelOpen = true
		return
	}

	slog.Warn("No tool call found for clicked message", "assistant_message_id", assistantMessageID, "tool", toolName)
	p.notice = "could not find details for this tool call"
}

// Navigate moves focus manually and suppresses auto-follow until the run
// returns to idle.
func (p *Projector) Navigate(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.records) {
		return
	}
	p.current = index
	p.userNavigated = true
}

// TogglePanel flips the panel. Closing it records the explicit user choice,
// which mutes streaming deltas and the auto-open heuristic.
func (p *Projector) TogglePanel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.panelOpen = !p.panelOpen
	if !p.panelOpen {
		p.userClosed = true
		p.autoOpened = false
	}
}

// OpenPanel opens the panel without touching the user-closed flag.
func (p *Projector) OpenPanel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panelOpen = true
}

func (p *Projector) drainDeferredLocked() {
	for len(p.deferred) > 0 {
		task := p.deferred[0]
		p.deferred = p.deferred[1:]
		task()
	}
}

// Records returns the current tool-call list. Shared slice, read-only;
// identity changes only when content does.
func (p *Projector) Records() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// CurrentIndex returns the focused record index.
func (p *Projector) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// PanelOpen reports whether the side panel is visible.
func (p *Projector) PanelOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.panelOpen
}

// TakeNotice returns and clears the transient user-facing notice.
func (p *Projector) TakeNotice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	notice := p.notice
	p.notice = ""
	return notice
}
