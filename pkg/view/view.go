// Package view runs the per-thread pipeline: it polls the backend, feeds
// the reconciler and projector, and publishes snapshots to subscribers.
package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/client"
	"github.com/agentdeck/agentdeck/pkg/store"
	"github.com/agentdeck/agentdeck/pkg/thread"
	"github.com/agentdeck/agentdeck/pkg/toolcall"
)

const defaultPollInterval = 2 * time.Second

// Snapshot is the read-only view handed to presentation layers.
type Snapshot struct {
	ThreadID     string            `json:"thread_id"`
	Messages     []thread.Message  `json:"messages"`
	ToolCalls    []toolcall.Record `json:"tool_calls"`
	CurrentIndex int               `json:"current_index"`
	PanelOpen    bool              `json:"panel_open"`
	RunStatus    string            `json:"run_status"`
	RunID        string            `json:"run_id,omitempty"`
	IsLoading    bool              `json:"is_loading"`
	Error        string            `json:"error,omitempty"`
	SandboxID    string            `json:"sandbox_id,omitempty"`
}

// ThreadView owns one thread's reconciliation pipeline. All backend data is
// applied from the Run goroutine; user interactions arrive through the
// exported methods and touch only focus state.
type ThreadView struct {
	threadID  string
	projectID string

	backend *client.Client
	cache   store.Store

	rec  *thread.Reconciler
	proj *toolcall.Projector

	pollInterval time.Duration

	mu          sync.Mutex
	sandboxID   string
	subscribers map[int]chan Snapshot
	nextSubID   int
	last        Snapshot

	// provisional assistant message being streamed, if any
	pendingAssistantID string
	pendingContent     string
}

// ViewOption configures a ThreadView.
type ViewOption func(*ThreadView)

// WithPollInterval overrides how often the message snapshot is refetched.
func WithPollInterval(d time.Duration) ViewOption {
	return func(v *ThreadView) {
		v.pollInterval = d
	}
}

// WithCache persists reconciled snapshots to the given store.
func WithCache(s store.Store) ViewOption {
	return func(v *ThreadView) {
		v.cache = s
	}
}

// WithNarrowViewport forwards the viewport hint to the projector.
func WithNarrowViewport(narrow bool) ViewOption {
	return func(v *ThreadView) {
		v.proj = toolcall.NewProjector(toolcall.WithNarrowViewport(narrow))
	}
}

// NewThreadView creates the pipeline for one thread.
func NewThreadView(threadID, projectID string, backend *client.Client, opts ...ViewOption) *ThreadView {
	v := &ThreadView{
		threadID:     threadID,
		projectID:    projectID,
		backend:      backend,
		proj:         toolcall.NewProjector(),
		pollInterval: defaultPollInterval,
		subscribers:  make(map[int]chan Snapshot),
	}
	v.rec = thread.NewReconciler(thread.WithRunStartHook(v.refreshProject))
	v.rec.SetThread(threadID)

	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run drives the pipeline until ctx is cancelled. It owns all backend
// traffic for the thread: the initial load, the poll loop, and the live
// event stream when a run is active.
func (v *ThreadView) Run(ctx context.Context) error {
	v.initialLoad(ctx)
	v.publish()

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	var events <-chan client.Event
	var streamCancel context.CancelFunc
	defer func() {
		if streamCancel != nil {
			streamCancel()
		}
	}()

	for {
		// Attach to the live stream when a run is active and we are not
		// already attached.
		if events == nil {
			if runID := v.rec.RunID(); runID != "" {
				streamCtx, cancel := context.WithCancel(ctx)
				ch, err := v.backend.StreamRun(streamCtx, runID)
				if err != nil {
					slog.Warn("Failed to attach to run stream", "run_id", runID, "error", err)
					cancel()
				} else {
					slog.Debug("Attached to run stream", "run_id", runID)
					events = ch
					streamCancel = cancel
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			v.pollMessages(ctx)
			v.publish()

		case event, ok := <-events:
			if !ok {
				events = nil
				if streamCancel != nil {
					streamCancel()
					streamCancel = nil
				}
				continue
			}
			v.applyEvent(event)
			v.publish()
		}
	}
}

func (v *ThreadView) initialLoad(ctx context.Context) {
	if _, err := v.backend.GetThread(ctx, v.threadID); err != nil {
		v.rec.Fail(err)
		return
	}

	v.pollMessages(ctx)

	runs, err := v.backend.GetAgentRuns(ctx, v.threadID)
	if err != nil {
		v.rec.Fail(err)
		return
	}
	v.rec.ApplyRuns(v.threadID, runs)
	v.proj.SetMessages(v.rec.Messages(), v.rec.RunStatus())
}

func (v *ThreadView) pollMessages(ctx context.Context) {
	raw, err := v.backend.GetMessages(ctx, v.threadID)
	if err != nil {
		v.rec.Fail(err)
		return
	}
	v.rec.ApplySnapshot(v.threadID, raw)
	v.proj.SetMessages(v.rec.Messages(), v.rec.RunStatus())
}

func (v *ThreadView) applyEvent(event client.Event) {
	switch e := event.(type) {
	case *client.StatusEvent:
		v.rec.SetRunStatus(e.Status)
		if e.RunID != "" {
			v.rec.SetRunID(e.RunID)
		}
		if e.Status == api.RunStatusIdle || e.Status == api.RunStatusError {
			v.finishPendingAssistant()
		}
		v.proj.SetMessages(v.rec.Messages(), v.rec.RunStatus())

	case *client.AssistantDeltaEvent:
		v.appendAssistantDelta(e)

	case *client.ToolCallDeltaEvent:
		v.proj.StreamDelta(e.Delta)

	case *client.MessageEvent:
		msg := thread.Normalize(v.threadID, e.Message, time.Now())
		v.rec.AppendLocal(msg)
		v.proj.SetMessages(v.rec.Messages(), v.rec.RunStatus())

	case *client.ErrorEvent:
		v.rec.Fail(errors.New(e.Error))

	case *client.StreamClosedEvent:
		v.finishPendingAssistant()
	}
}

// appendAssistantDelta maintains one provisional assistant message that
// accumulates streamed content until the server-side message lands.
func (v *ThreadView) appendAssistantDelta(e *client.AssistantDeltaEvent) {
	v.mu.Lock()
	v.pendingContent += e.Content
	content := v.pendingContent
	id := v.pendingAssistantID
	v.mu.Unlock()

	if id == "" {
		id = thread.NewTempID()
		v.mu.Lock()
		v.pendingAssistantID = id
		v.mu.Unlock()

		v.rec.AppendLocal(thread.Message{
			ID:      id,
			Kind:    thread.KindAssistant,
			IsLLM:   true,
			Content: content,
			AgentID: e.AgentID,
		})
	} else {
		v.rec.ReplaceLocal(id, thread.Message{
			ID:      id,
			Kind:    thread.KindAssistant,
			IsLLM:   true,
			Content: content,
			AgentID: e.AgentID,
		})
	}
	v.proj.SetMessages(v.rec.Messages(), v.rec.RunStatus())
}

func (v *ThreadView) finishPendingAssistant() {
	v.mu.Lock()
	v.pendingAssistantID = ""
	v.pendingContent = ""
	v.mu.Unlock()
}

// refreshProject is the run-start hook: a running agent may have provisioned
// a new sandbox, so the project metadata is refetched once per start edge.
func (v *ThreadView) refreshProject() {
	if v.projectID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		project, err := v.backend.GetProject(ctx, v.projectID)
		if err != nil {
			slog.Warn("Failed to refresh project", "project_id", v.projectID, "error", err)
			return
		}
		v.mu.Lock()
		if project.Sandbox != nil {
			v.sandboxID = project.Sandbox.ID
		}
		v.mu.Unlock()
		v.publish()
	}()
}

// Navigate, Click and TogglePanel forward user interactions to the
// projector and publish the resulting state.
func (v *ThreadView) Navigate(index int) {
	v.proj.Navigate(index)
	v.publish()
}

func (v *ThreadView) Click(assistantMessageID, toolName string) string {
	v.proj.Click(assistantMessageID, toolName)
	notice := v.proj.TakeNotice()
	v.publish()
	return notice
}

func (v *ThreadView) TogglePanel() {
	v.proj.TogglePanel()
	v.publish()
}

// Snapshot returns the current view state.
func (v *ThreadView) Snapshot() Snapshot {
	v.mu.Lock()
	sandboxID := v.sandboxID
	v.mu.Unlock()

	return Snapshot{
		ThreadID:     v.threadID,
		Messages:     v.rec.Messages(),
		ToolCalls:    v.proj.Records(),
		CurrentIndex: v.proj.CurrentIndex(),
		PanelOpen:    v.proj.PanelOpen(),
		RunStatus:    v.rec.RunStatus(),
		RunID:        v.rec.RunID(),
		IsLoading:    v.rec.IsLoading(),
		Error:        v.rec.Err(),
		SandboxID:    sandboxID,
	}
}

// Subscribe registers for snapshot updates. The channel holds the latest
// snapshot only; slow consumers see coalesced updates, never a backlog.
func (v *ThreadView) Subscribe() (<-chan Snapshot, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextSubID
	v.nextSubID++
	ch := make(chan Snapshot, 1)
	v.subscribers[id] = ch

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subscribers[id]; ok {
			delete(v.subscribers, id)
			close(sub)
		}
	}
}

// publish notifies subscribers when the view actually changed. Slice
// identity is the change signal; the reconciler and projector keep previous
// slices when content is unchanged.
func (v *ThreadView) publish() {
	snap := v.Snapshot()

	v.mu.Lock()
	unchanged := snapshotsEqual(v.last, snap)
	if !unchanged {
		v.last = snap
	}
	subs := make([]chan Snapshot, 0, len(v.subscribers))
	for _, ch := range v.subscribers {
		subs = append(subs, ch)
	}
	v.mu.Unlock()

	if unchanged {
		return
	}

	for _, ch := range subs {
		// Drop the stale snapshot if the subscriber hasn't consumed it.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}

	v.persist(snap)
}

func snapshotsEqual(a, b Snapshot) bool {
	return len(a.Messages) == len(b.Messages) &&
		len(a.ToolCalls) == len(b.ToolCalls) &&
		sliceIdentity(a.Messages, b.Messages) &&
		recordIdentity(a.ToolCalls, b.ToolCalls) &&
		a.CurrentIndex == b.CurrentIndex &&
		a.PanelOpen == b.PanelOpen &&
		a.RunStatus == b.RunStatus &&
		a.IsLoading == b.IsLoading &&
		a.Error == b.Error &&
		a.SandboxID == b.SandboxID
}

func sliceIdentity(a, b []thread.Message) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return len(a) == len(b) && &a[0] == &b[0]
}

func recordIdentity(a, b []toolcall.Record) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return len(a) == len(b) && &a[0] == &b[0]
}

func (v *ThreadView) persist(snap Snapshot) {
	if v.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := v.cache.UpsertThread(ctx, api.Thread{
		ThreadID:  v.threadID,
		ProjectID: v.projectID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	if err == nil {
		err = v.cache.ReplaceMessages(ctx, v.threadID, snap.Messages)
	}
	if err != nil {
		slog.Warn("Failed to persist thread snapshot", "thread_id", v.threadID, "error", err)
	}
}
