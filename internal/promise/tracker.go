// Package promise tracks the lifecycle of asynchronous tasks announced by an
// external runtime through four hook events: init, resolve, before, and after.
//
// From SPEC_FULL.md §4.1:
//
//	"which logical task am I in, and what was its originating task?"
//
// The tracker never raises: hook events must not panic or return errors back
// into the runtime that emitted them, because the runtime cannot unwind back
// into itself. Internal inconsistencies (an After for an unknown task, a
// stack-top mismatch) are tolerated silently, at most logged.
package promise

import (
	"sync"

	"go.uber.org/zap"
)

// TaskID identifies a live task. 0 is reserved for "none."
type TaskID uint32

type taskRecord struct {
	id          TaskID
	parentID    TaskID
	activeCount int
}

// Tracker is a process-wide singleton in production but is always
// constructed explicitly here so tests can run independent instances and
// reset cleanly between cases (SPEC_FULL.md §9: "explicitly teardown-able in
// tests").
type Tracker struct {
	mu          sync.Mutex
	log         *zap.Logger
	nextID      TaskID
	records     map[TaskID]*taskRecord
	handleIndex map[any]TaskID
	stack       []TaskID
}

// New creates an empty Tracker. A nil logger is replaced with zap.NewNop().
func New(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		log:         log,
		records:     make(map[TaskID]*taskRecord),
		handleIndex: make(map[any]TaskID),
	}
}

// Init announces that handle has started (or, for an already-live handle,
// started again as an additional outstanding reference). parent may be nil.
//
// Parent-upgrade policy (SPEC_FULL.md §4.1, resolving the spec's open
// question): last concrete parent wins, matching the original runtime's
// ActivePromise::add_match, which unconditionally replaces an already-set
// parent whenever a new concrete one is announced. A later init for an
// already-live task with a concrete parent always adopts it, overwriting
// whatever was stored before.
func (t *Tracker) Init(handle any, parent any) {
	if handle == nil {
		t.log.Warn("promise: init with nil handle ignored")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parentID := t.resolveParentLocked(parent)

	if id, ok := t.handleIndex[handle]; ok {
		rec := t.records[id]
		if rec == nil {
			t.log.Warn("promise: init for dangling handle index entry", zap.Uint32("id", uint32(id)))
			return
		}
		rec.activeCount++
		if parentID != 0 {
			if rec.parentID != 0 && rec.parentID != parentID {
				t.log.Debug("promise: replacing defined parent",
					zap.Uint32("id", uint32(id)),
					zap.Uint32("oldParent", uint32(rec.parentID)),
					zap.Uint32("newParent", uint32(parentID)))
			}
			rec.parentID = parentID
		}
		return
	}

	t.nextID++
	id := t.nextID
	t.records[id] = &taskRecord{id: id, parentID: parentID, activeCount: 1}
	t.handleIndex[handle] = id
	t.log.Debug("promise: init", zap.Uint32("id", uint32(id)), zap.Uint32("parent", uint32(parentID)))
}

func (t *Tracker) resolveParentLocked(parent any) TaskID {
	if parent == nil {
		return 0
	}
	if id, ok := t.handleIndex[parent]; ok {
		return id
	}
	return 0
}

// Resolve is a documented no-op: the spec ignores the resolve/reject hook.
func (t *Tracker) Resolve(handle any) {}

// Before pushes handle's task id onto the executing-task stack. A handle with
// no known record is a no-op (tolerated silently, per the hook-never-raises
// contract).
func (t *Tracker) Before(handle any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.handleIndex[handle]
	if !ok {
		t.log.Warn("promise: before for unknown handle")
		return
	}
	t.stack = append(t.stack, id)
}

// After pops handle's task id from the executing-task stack if and only if it
// is at the top, then decrements the task's active count, destroying the
// record once it reaches zero.
func (t *Tracker) After(handle any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.handleIndex[handle]
	if !ok {
		t.log.Warn("promise: after for unknown handle")
		return
	}

	if n := len(t.stack); n > 0 && t.stack[n-1] == id {
		t.stack = t.stack[:n-1]
	} else {
		t.log.Warn("promise: after for task not at stack top", zap.Uint32("id", uint32(id)))
	}

	rec := t.records[id]
	if rec == nil {
		return
	}
	rec.activeCount--
	if rec.activeCount <= 0 {
		delete(t.records, id)
		delete(t.handleIndex, handle)
	}
}

// CurrentID returns the top of the executing-task stack, or 0 if empty.
func (t *Tracker) CurrentID() TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return 0
	}
	return t.stack[len(t.stack)-1]
}

// ParentID returns the stored parent of id, or 0 if none or unknown.
func (t *Tracker) ParentID(id TaskID) TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return 0
	}
	return rec.parentID
}

// Snapshot returns a point-in-time copy of every live record, for
// internal/lineage's diagnostic DAG view. The map is keyed by id.
func (t *Tracker) Snapshot() map[TaskID]TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[TaskID]TaskID, len(t.records))
	for id, rec := range t.records {
		out[id] = rec.parentID
	}
	return out
}

// Reset clears all state. Tests call this between cases.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID = 0
	t.records = make(map[TaskID]*taskRecord)
	t.handleIndex = make(map[any]TaskID)
	t.stack = nil
}
