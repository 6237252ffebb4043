// Package registry implements ContextRegistry: the process-wide map from a
// lineage name to its ExecutionContextView, resolved for "the current call"
// by walking PromiseTracker's parent chain.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ctxguard/internal/ctxerr"
	"ctxguard/internal/ctxstack"
	"ctxguard/internal/ctxview"
	"ctxguard/internal/promise"
)

// DefaultLineageName is the fixed name bound at startup and used as the
// fallback whenever the tracker's parent walk cannot resolve a bound
// lineage. It is a fixed constant rather than a generated token: only
// forked lineage names need to be unguessable, and a fixed default keeps
// test and CLI output deterministic.
const DefaultLineageName = "default"

// Registry is ContextRegistry. It owns no lock of its own beyond mu because
// the spec's concurrency model serializes registry access per the
// single-threaded cooperative executor (SPEC_FULL.md §5); the mutex here
// exists only to make the package also safe to call from the
// goroutine-per-lineage pattern the tests use to simulate
// concurrent lineages, per "Concurrent lineage isolation" (SPEC_FULL.md
// §8).
type Registry struct {
	mu sync.Mutex

	tracker *promise.Tracker
	log     *zap.Logger

	lineageViews map[string]*ctxview.View
	taskLineage  map[promise.TaskID]string
}

// New creates a Registry bound to tracker, with the default lineage already
// bound to the tracker's current task id and a fresh, non-strict View.
func New(tracker *promise.Tracker, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		tracker:      tracker,
		log:          log,
		lineageViews: make(map[string]*ctxview.View),
		taskLineage:  make(map[promise.TaskID]string),
	}
	r.lineageViews[DefaultLineageName] = ctxview.New(false, false)
	r.taskLineage[tracker.CurrentID()] = DefaultLineageName
	return r
}

// GetCurrentContext resolves the ExecutionContextView for the task
// currently at the top of the tracker's executing-task stack, walking
// parent ids until one is bound to a lineage. It falls back to the default
// lineage if the walk reaches 0 or gets stuck (the same id twice in a row,
// which cannot happen given the tracker's monotonic-id invariant but is
// guarded against defensively, matching the spec's own termination note).
func (r *Registry) GetCurrentContext() *ctxview.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentViewLocked()
}

// ForkForPromise creates a new lineage: a fresh, unguessable name bound to
// the current view's Fork(strictControllers, strictSegments).
func (r *Registry) ForkForPromise(strictControllers, strictSegments bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.currentViewLocked()
	name := uuid.New().String()
	frameID := ctxstack.NewFrameID()
	r.lineageViews[name] = current.Fork(frameID, strictControllers, strictSegments)
	r.log.Debug("registry: forked lineage", zap.String("name", name))
	return name, nil
}

func (r *Registry) currentViewLocked() *ctxview.View {
	t := r.tracker.CurrentID()
	prev := promise.TaskID(0)
	for t != 0 {
		if name, ok := r.taskLineage[t]; ok {
			return r.lineageViews[name]
		}
		next := r.tracker.ParentID(t)
		if next == 0 || next == prev {
			break
		}
		prev = t
		t = next
	}
	return r.lineageViews[DefaultLineageName]
}

// StartPromise binds the tracker's current task id to the already-forked
// lineage name. It fails if name is unknown or the current task id is
// already bound to any lineage.
func (r *Registry) StartPromise(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lineageViews[name]; !ok {
		return ctxerr.InvalidArgValue("name", name)
	}
	t := r.tracker.CurrentID()
	if _, bound := r.taskLineage[t]; bound {
		return ctxerr.InvalidArgValue("task", t)
	}
	r.taskLineage[t] = name
	return nil
}

// EndPromise removes every task binding referencing name and the
// lineage→view binding itself. It reports whether anything was removed.
func (r *Registry) EndPromise(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	if _, ok := r.lineageViews[name]; ok {
		delete(r.lineageViews, name)
		removed = true
	}
	for t, n := range r.taskLineage {
		if n == name {
			delete(r.taskLineage, t)
			removed = true
		}
	}
	return removed
}

// Reset restores the Registry to a fresh default-lineage-only state, for
// test teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lineageViews = make(map[string]*ctxview.View)
	r.taskLineage = make(map[promise.TaskID]string)
	r.lineageViews[DefaultLineageName] = ctxview.New(false, false)
	r.taskLineage[r.tracker.CurrentID()] = DefaultLineageName
}
