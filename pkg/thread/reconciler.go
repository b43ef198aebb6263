package thread

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
)

const (
	// recentAssistantWindow protects assistant messages that already carry a
	// server id but whose final content may not have synced yet.
	recentAssistantWindow = 60 * time.Second

	// reloadSlack is how many messages the server snapshot must grow by
	// before an already-populated view is re-merged during a run.
	reloadSlack = 50

	// defaultGuardCooldown keeps the streaming guard up after a run goes
	// idle so trailing writes can land before full re-merges resume.
	defaultGuardCooldown = 5 * time.Second
)

// Reconciler owns the canonical message list for one thread at a time. All
// methods are safe for concurrent use; internally it is a single-writer
// state machine guarded by one mutex.
type Reconciler struct {
	mu sync.Mutex

	now        func() time.Time
	after      func(d time.Duration, f func()) *time.Timer
	onRunStart func()

	guardCooldown time.Duration

	threadID string
	epoch    uint64

	messages []Message
	err      string

	loading      bool
	seenMessages bool
	seenRuns     bool
	runsChecked  bool

	runStatus string
	runID     string

	streamGuard bool
	guardTimer  *time.Timer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithGuardCooldown overrides how long the streaming guard lingers after a
// run returns to idle.
func WithGuardCooldown(d time.Duration) Option {
	return func(r *Reconciler) {
		r.guardCooldown = d
	}
}

// WithAfterFunc overrides timer scheduling, for tests that need to fire the
// guard cooldown deterministically.
func WithAfterFunc(after func(d time.Duration, f func()) *time.Timer) Option {
	return func(r *Reconciler) {
		r.after = after
	}
}

// WithRunStartHook registers a callback fired once on each transition from
// idle/error into connecting/running. The view layer uses it to refresh
// project and sandbox metadata.
func WithRunStartHook(f func()) Option {
	return func(r *Reconciler) {
		r.onRunStart = f
	}
}

// NewReconciler creates a reconciler with no thread selected.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		now:           time.Now,
		after:         time.AfterFunc,
		guardCooldown: defaultGuardCooldown,
		runStatus:     api.RunStatusIdle,
		loading:       true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetThread switches to a different conversation. All accumulated state for
// the previous thread is discarded synchronously; late snapshots for the old
// thread become no-ops because they carry the old thread id.
func (r *Reconciler) SetThread(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.threadID {
		return
	}

	slog.Debug("Switching thread", "from", r.threadID, "to", id)

	r.threadID = id
	r.epoch++
	r.messages = nil
	r.err = ""
	r.loading = true
	r.seenMessages = false
	r.seenRuns = false
	r.runsChecked = false
	r.runStatus = api.RunStatusIdle
	r.runID = ""
	r.streamGuard = false
	if r.guardTimer != nil {
		r.guardTimer.Stop()
		r.guardTimer = nil
	}
}

// ApplySnapshot feeds a full server snapshot of a thread's messages.
// Snapshots for a thread other than the current one are discarded.
func (r *Reconciler) ApplySnapshot(threadID string, raw []api.ThreadMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if threadID != r.threadID {
		slog.Debug("Dropping snapshot for stale thread", "snapshot_thread", threadID, "current_thread", r.threadID)
		return
	}

	server := r.normalizeSnapshot(raw)

	if !r.shouldReload(len(server)) {
		return
	}

	r.merge(server)
	r.err = ""
	r.seenMessages = true
	r.updateLoading()
}

// shouldReload gates full re-merges: always on first load, otherwise only
// when the snapshot has grown well past the current view and no stream is
// active. This keeps a frequently-polled snapshot from churning the view
// mid-run.
func (r *Reconciler) shouldReload(snapshotLen int) bool {
	if len(r.messages) == 0 {
		return true
	}
	return snapshotLen > len(r.messages)+reloadSlack && !r.streamGuard
}

func (r *Reconciler) normalizeSnapshot(raw []api.ThreadMessage) []Message {
	now := r.now()
	server := make([]Message, 0, len(raw))
	for _, m := range raw {
		if Kind(m.Type) == KindStatus {
			continue
		}
		server = append(server, Normalize(r.threadID, m, now))
	}
	return server
}

// merge combines the server snapshot with local messages the server has not
// superseded, commits the result only if something actually changed, and
// keeps the previous slice otherwise so downstream equality checks hold.
func (r *Reconciler) merge(server []Message) {
	serverIDs := make(map[string]struct{}, len(server))
	for _, m := range server {
		if !m.Provisional() {
			serverIDs[m.ID] = struct{}{}
		}
	}

	recentCutoff := r.now().Add(-recentAssistantWindow)

	var extras []Message
	for _, m := range r.messages {
		if m.Provisional() {
			extras = append(extras, m)
			continue
		}
		if _, ok := serverIDs[m.ID]; !ok {
			extras = append(extras, m)
			continue
		}
		// The server knows this id, but a just-streamed assistant message
		// may still carry newer content than the snapshot. Keep it until an
		// exact (id, content) match shows up.
		if m.Kind == KindAssistant && m.CreatedAt.After(recentCutoff) && !hasExactMatch(server, m) {
			extras = append(extras, m)
		}
	}

	merged := make([]Message, 0, len(server)+len(extras))
	merged = append(merged, server...)
	merged = append(merged, extras...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	if messagesEqual(r.messages, merged) {
		return
	}

	r.messages = merged
}

func hasExactMatch(server []Message, m Message) bool {
	for _, s := range server {
		if s.ID == m.ID && s.Content == m.Content {
			return true
		}
	}
	return false
}

// messagesEqual compares the fields that matter for rendering; equal lists
// keep the previous slice reference so consumers can skip updates.
func messagesEqual(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID ||
			a[i].Content != b[i].Content ||
			a[i].Kind != b[i].Kind ||
			a[i].Metadata != b[i].Metadata {
			return false
		}
	}
	return true
}

// AppendLocal adds a provisional message (optimistic send or streamed
// assistant content) to the view ahead of server confirmation.
func (r *Reconciler) AppendLocal(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ThreadID == "" {
		msg.ThreadID = r.threadID
	} else if msg.ThreadID != r.threadID {
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.Metadata == "" {
		msg.Metadata = "{}"
	}

	merged := make([]Message, 0, len(r.messages)+1)
	merged = append(merged, r.messages...)
	merged = append(merged, msg)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	r.messages = merged
}

// ReplaceLocal swaps a provisional message (matched by temp id) for its
// server-confirmed form in place.
func (r *Reconciler) ReplaceLocal(tempID string, msg Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		if r.messages[i].ID == tempID {
			merged := make([]Message, len(r.messages))
			copy(merged, r.messages)
			merged[i] = msg
			r.messages = merged
			return true
		}
	}
	return false
}

// ApplyRuns feeds the backend's agent-run list for the current thread. Only
// the first list per thread decides the initial run status; later status
// changes arrive through SetRunStatus from the live stream.
func (r *Reconciler) ApplyRuns(threadID string, runs []api.AgentRun) {
	r.mu.Lock()

	if threadID != r.threadID {
		r.mu.Unlock()
		return
	}

	r.seenRuns = true

	if r.runsChecked {
		r.updateLoading()
		r.mu.Unlock()
		return
	}
	r.runsChecked = true

	var running *api.AgentRun
	for i := range runs {
		if runs[i].Status == api.RunStatusRunning {
			running = &runs[i]
			break
		}
	}

	var transition func()
	if running != nil {
		r.runID = running.ID
		transition = r.transitionLocked(api.RunStatusRunning)
	} else {
		// Historical conversation: make sure nothing tries to attach to a
		// finished run.
		r.runID = ""
		transition = r.transitionLocked(api.RunStatusIdle)
	}
	r.updateLoading()
	r.mu.Unlock()

	if transition != nil {
		transition()
	}
}

// SetRunStatus records a run-status change from the live stream.
func (r *Reconciler) SetRunStatus(status string) {
	r.mu.Lock()
	transition := r.transitionLocked(status)
	r.mu.Unlock()

	if transition != nil {
		transition()
	}
}

// SetRunID records the active run identifier.
func (r *Reconciler) SetRunID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runID = id
}

// transitionLocked applies a status change and returns the run-start hook to
// invoke outside the lock, if the edge fired.
func (r *Reconciler) transitionLocked(status string) func() {
	prev := r.runStatus
	r.runStatus = status

	switch status {
	case api.RunStatusRunning, api.RunStatusConnecting:
		r.streamGuard = true
		if r.guardTimer != nil {
			r.guardTimer.Stop()
			r.guardTimer = nil
		}
	case api.RunStatusIdle:
		r.scheduleGuardClear()
	}

	startEdge := (prev == api.RunStatusIdle || prev == api.RunStatusError) &&
		(status == api.RunStatusRunning || status == api.RunStatusConnecting)
	if startEdge && r.onRunStart != nil {
		return r.onRunStart
	}
	return nil
}

// scheduleGuardClear drops the streaming guard after the cooldown, unless
// the thread changed or a new run started in the meantime.
func (r *Reconciler) scheduleGuardClear() {
	epoch := r.epoch
	if r.guardTimer != nil {
		r.guardTimer.Stop()
	}
	r.guardTimer = r.after(r.guardCooldown, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.epoch != epoch || r.runStatus != api.RunStatusIdle {
			return
		}
		r.streamGuard = false
	})
}

// Fail records a fetch error. Already-merged messages are kept; retrying is
// the data source's job.
func (r *Reconciler) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		return
	}
	r.err = err.Error()
	r.loading = false
}

func (r *Reconciler) updateLoading() {
	if r.seenMessages && r.seenRuns {
		r.loading = false
	}
}

// Messages returns the current reconciled view. The slice is shared and
// must be treated as read-only; its identity only changes when content does.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages
}

// ThreadID returns the current thread.
func (r *Reconciler) ThreadID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threadID
}

// IsLoading is true until the first message snapshot and run list have both
// been observed for the current thread.
func (r *Reconciler) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the last fetch error message, empty when healthy.
func (r *Reconciler) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// RunStatus returns the current run lifecycle state.
func (r *Reconciler) RunStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus
}

// RunID returns the active run id, empty when idle.
func (r *Reconciler) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// StreamGuardActive reports whether full re-merges are currently throttled.
func (r *Reconciler) StreamGuardActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamGuard
}
