package handle

import (
	"sort"
	"time"

	"go.keystonedb.dev/core/engine"
)

type (
	// PerformanceTraceFunc observes a completed statement execution cycle
	// and its wall-clock duration.
	PerformanceTraceFunc func(sql string, elapsed time.Duration)
	// SQLTraceFunc observes each statement as it begins executing.
	SQLTraceFunc func(sql string)
	// WillStepFunc runs before each statement step. A non-nil error vetoes
	// the step, which then fails with an abort code.
	WillStepFunc func(s *Statement) error
	// DidStepFunc runs after each statement step with its outcome.
	DidStepFunc func(s *Statement, err error)
	// BusyFunc runs when a step returns busy or locked, with the database
	// path and the number of attempts so far. Returning true retries the
	// step; false lets the failure surface.
	BusyFunc func(path string, attempts int) bool
	// CheckpointFunc observes completed write-ahead log checkpoints.
	CheckpointFunc func(path string, mode engine.CheckpointMode)
	// CommittedFunc observes successful transaction commits, with the
	// number of write-ahead log frames pending after the commit.
	CommittedFunc func(path string, walFrames int)
)

// hook is one named registration on a notification channel. Channels fire
// hooks in registration order; the committed channel orders by (order, seq).
type hook struct {
	name  string
	order int
	seq   int
	fn    interface{}
}

// notifier holds the handle's notification registries. Registration and
// dispatch happen on the handle's goroutine and require no locking.
type notifier struct {
	perf       []hook
	sqlTrace   []hook
	willStep   []hook
	didStep    []hook
	busy       []hook
	checkpoint []hook
	committed  []hook
	seq        int
}

// setHook installs |fn| under |name|, replacing an existing registration in
// place (preserving its position) or appending a new one. A nil |fn|
// removes the registration.
func setHook(hooks []hook, name string, fn interface{}) []hook {
	for i := range hooks {
		if hooks[i].name == name {
			if fn == nil {
				return append(hooks[:i], hooks[i+1:]...)
			}
			hooks[i].fn = fn
			return hooks
		}
	}
	if fn == nil {
		return hooks
	}
	return append(hooks, hook{name: name, fn: fn})
}

func removeHook(hooks []hook, name string) []hook {
	for i := range hooks {
		if hooks[i].name == name {
			return append(hooks[:i], hooks[i+1:]...)
		}
	}
	return hooks
}

// SetPerformanceTraceNotification registers |fn| under |name| to observe
// completed statement execution cycles. Re-registering a name replaces its
// callback in place; a nil |fn| unregisters it.
func (h *Handle) SetPerformanceTraceNotification(name string, fn PerformanceTraceFunc) {
	if fn == nil {
		h.notes.perf = setHook(h.notes.perf, name, nil)
		return
	}
	h.notes.perf = setHook(h.notes.perf, name, fn)
}

// SetSQLTraceNotification registers |fn| under |name| to observe statements
// as they begin executing. Re-registering a name replaces its callback in
// place; a nil |fn| unregisters it.
func (h *Handle) SetSQLTraceNotification(name string, fn SQLTraceFunc) {
	if fn == nil {
		h.notes.sqlTrace = setHook(h.notes.sqlTrace, name, nil)
		return
	}
	h.notes.sqlTrace = setHook(h.notes.sqlTrace, name, fn)
}

// SetWillStepNotification registers |fn| under |name| to run before each
// statement step. Re-registering a name replaces its callback in place; a
// nil |fn| unregisters it.
func (h *Handle) SetWillStepNotification(name string, fn WillStepFunc) {
	if fn == nil {
		h.notes.willStep = setHook(h.notes.willStep, name, nil)
		return
	}
	h.notes.willStep = setHook(h.notes.willStep, name, fn)
}

// SetDidStepNotification registers |fn| under |name| to run after each
// statement step. Re-registering a name replaces its callback in place; a
// nil |fn| unregisters it.
func (h *Handle) SetDidStepNotification(name string, fn DidStepFunc) {
	if fn == nil {
		h.notes.didStep = setHook(h.notes.didStep, name, nil)
		return
	}
	h.notes.didStep = setHook(h.notes.didStep, name, fn)
}

// SetBusyRetryNotification registers |fn| under |name| to arbitrate busy
// retries. Re-registering a name replaces its callback in place; a nil
// |fn| unregisters it.
func (h *Handle) SetBusyRetryNotification(name string, fn BusyFunc) {
	if fn == nil {
		h.notes.busy = setHook(h.notes.busy, name, nil)
		return
	}
	h.notes.busy = setHook(h.notes.busy, name, fn)
}

// SetCheckpointedNotification registers |fn| under |name| to observe
// completed checkpoints. Re-registering a name replaces its callback in
// place; a nil |fn| unregisters it.
func (h *Handle) SetCheckpointedNotification(name string, fn CheckpointFunc) {
	if fn == nil {
		h.notes.checkpoint = setHook(h.notes.checkpoint, name, nil)
		return
	}
	h.notes.checkpoint = setHook(h.notes.checkpoint, name, fn)
}

// SetCommittedNotification registers |fn| under |name| to observe successful
// commits. Hooks fire ascending by |order|, with ties broken by registration
// sequence. Re-registering a name adopts the newly given order. A nil |fn|
// unregisters it.
func (h *Handle) SetCommittedNotification(name string, order int, fn CommittedFunc) {
	h.notes.committed = removeHook(h.notes.committed, name)
	if fn == nil {
		return
	}
	h.notes.seq++
	h.notes.committed = append(h.notes.committed,
		hook{name: name, order: order, seq: h.notes.seq, fn: fn})

	sort.SliceStable(h.notes.committed, func(i, j int) bool {
		var a, b = h.notes.committed[i], h.notes.committed[j]
		if a.order != b.order {
			return a.order < b.order
		}
		return a.seq < b.seq
	})
}

// UnsetCommittedNotification removes the commit hook registered as |name|.
func (h *Handle) UnsetCommittedNotification(name string) {
	h.notes.committed = removeHook(h.notes.committed, name)
}

func (n *notifier) firePerformanceTrace(sql string, elapsed time.Duration) {
	for _, e := range n.perf {
		e.fn.(PerformanceTraceFunc)(sql, elapsed)
	}
}

func (n *notifier) fireSQLTrace(sql string) {
	for _, e := range n.sqlTrace {
		e.fn.(SQLTraceFunc)(sql)
	}
}

func (n *notifier) fireWillStep(s *Statement) error {
	for _, e := range n.willStep {
		if err := e.fn.(WillStepFunc)(s); err != nil {
			return err
		}
	}
	return nil
}

func (n *notifier) fireDidStep(s *Statement, err error) {
	for _, e := range n.didStep {
		e.fn.(DidStepFunc)(s, err)
	}
}

// fireBusy consults every registered busy hook. The step retries if any
// hook returns true. With no hooks registered the failure surfaces.
func (n *notifier) fireBusy(path string, attempts int) bool {
	var retry bool
	for _, e := range n.busy {
		if e.fn.(BusyFunc)(path, attempts) {
			retry = true
		}
	}
	return retry
}

func (n *notifier) fireCheckpointed(path string, mode engine.CheckpointMode) {
	for _, e := range n.checkpoint {
		e.fn.(CheckpointFunc)(path, mode)
	}
}

func (n *notifier) fireCommitted(path string, walFrames int) {
	for _, e := range n.committed {
		e.fn.(CommittedFunc)(path, walFrames)
	}
}
