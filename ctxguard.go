// Package ctxguard is the public API of the segmented execution-context
// stack: a promise-lineage tracker, a stack of named segment controllers
// composed per call, and a file-access security controller built on top of
// it.
//
// The package keeps one process-wide singleton, published atomically, in
// the style of the DIRPX-rfx module this package's wiring is grounded on:
// readers load a snapshot with no locking; writers (SetLogger,
// SetAuditStore, Reset) serialize through a mutex and publish a new
// snapshot.
package ctxguard

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"ctxguard/internal/audit"
	"ctxguard/internal/config"
	"ctxguard/internal/ctxapi"
	"ctxguard/internal/ctxview"
	"ctxguard/internal/fileaccess"
	"ctxguard/internal/lineage"
	"ctxguard/internal/pathmatch"
	"ctxguard/internal/promise"
	"ctxguard/internal/registry"
	"ctxguard/internal/trace"
)

// SegmentFileAccess is the well-known segment name a FileAccessController
// is attached under.
const SegmentFileAccess = "fileaccess"

type state struct {
	log     *zap.Logger
	tracker *promise.Tracker
	reg     *registry.Registry
	audit   audit.Sink
	trace   trace.Sink
}

func newState(log *zap.Logger) *state {
	if log == nil {
		log = zap.NewNop()
	}
	tracker := promise.New(log)
	return &state{
		log:     log,
		tracker: tracker,
		reg:     registry.New(tracker, log),
		audit:   audit.NopSink{},
		trace:   trace.NopSink{},
	}
}

var buildMu sync.Mutex
var st atomic.Pointer[state]

func init() {
	st.Store(newState(nil))
}

// SetLogger installs log for every component's lifecycle logging. A nil
// logger is replaced with zap.NewNop().
func SetLogger(log *zap.Logger) {
	buildMu.Lock()
	defer buildMu.Unlock()
	old := st.Load()
	if log == nil {
		log = zap.NewNop()
	}
	next := newState(log)
	next.audit = old.audit
	next.trace = old.trace
	st.Store(next)
}

// SetAuditStore attaches sink so every FileAccessController constructed
// afterward records its decisions to it. A nil sink reverts to discarding
// decisions.
func SetAuditStore(sink audit.Sink) {
	buildMu.Lock()
	defer buildMu.Unlock()
	old := st.Load()
	if sink == nil {
		sink = audit.NopSink{}
	}
	st.Store(&state{log: old.log, tracker: old.tracker, reg: old.reg, audit: sink, trace: old.trace})
}

// SetTraceSink attaches sink so every FileAccessController constructed
// afterward records its access checks to it. A nil sink reverts to
// discarding events.
func SetTraceSink(sink trace.Sink) {
	buildMu.Lock()
	defer buildMu.Unlock()
	old := st.Load()
	if sink == nil {
		sink = trace.NopSink{}
	}
	st.Store(&state{log: old.log, tracker: old.tracker, reg: old.reg, audit: old.audit, trace: sink})
}

// Reset discards all tracked tasks, lineages, and frames, restoring the
// package to its freshly-initialized state. Tests call this between cases;
// it is the explicit teardown SPEC_FULL.md §9 requires of the process-wide
// singletons.
func Reset() {
	buildMu.Lock()
	defer buildMu.Unlock()
	old := st.Load()
	st.Store(newState(old.log))
}

// GetCurrentContext returns the ExecutionContextView bound to the lineage
// of the currently executing task.
func GetCurrentContext() *ctxview.View {
	return st.Load().reg.GetCurrentContext()
}

// WrapFunction returns a Callable that, when invoked, resolves the current
// context and runs call through it with segmentOpts applied.
func WrapFunction(segmentOpts []ctxview.SegmentOption, call ctxview.Callable) ctxview.Callable {
	return func(args []any) (any, error) {
		return GetCurrentContext().RunInContext(segmentOpts, call, args)
	}
}

// ForkForPromise creates a new lineage forked from the current context and
// returns its name.
func ForkForPromise(strictControllers, strictSegments bool) (string, error) {
	return st.Load().reg.ForkForPromise(strictControllers, strictSegments)
}

// StartPromise binds the currently executing task to the already-forked
// lineage name.
func StartPromise(name string) error {
	return st.Load().reg.StartPromise(name)
}

// EndPromise removes every task binding referencing name and the lineage
// itself, reporting whether anything was removed.
func EndPromise(name string) bool {
	return st.Load().reg.EndPromise(name)
}

// WrapPromise forks a new lineage, binds the current task to it for the
// duration of fn, and ends the lineage when fn returns — a synchronous
// adaptation of the distilled spec's fork→start→run→end microtask dance,
// collapsed into one call because this package models execution as
// synchronous Go calls rather than a scheduled microtask queue. It returns
// StartPromise's error, without running fn, when the current task is
// already bound to a lineage; that includes running with no task executing,
// since task id 0 is bound to the default lineage.
func WrapPromise(strictControllers, strictSegments bool, fn func() (any, error)) (any, error) {
	name, err := ForkForPromise(strictControllers, strictSegments)
	if err != nil {
		return nil, err
	}
	if err := StartPromise(name); err != nil {
		return nil, err
	}
	defer EndPromise(name)
	return fn()
}

// GetCurrentPromiseID returns the task id at the top of the executing-task
// stack, or 0 if none.
func GetCurrentPromiseID() promise.TaskID {
	return st.Load().tracker.CurrentID()
}

// GetParentPromiseID returns the stored parent of id, or 0 if unknown. With
// no argument it reports the parent of the currently executing task.
func GetParentPromiseID(id ...promise.TaskID) promise.TaskID {
	s := st.Load()
	target := s.tracker.CurrentID()
	if len(id) > 0 {
		target = id[0]
	}
	return s.tracker.ParentID(target)
}

// OnInit adapts an async runtime's task-init hook.
func OnInit(handle, parent any) { st.Load().tracker.Init(handle, parent) }

// OnResolve adapts an async runtime's task-resolve hook. It is a
// documented no-op (see internal/promise.Tracker.Resolve).
func OnResolve(handle any) { st.Load().tracker.Resolve(handle) }

// OnBefore adapts an async runtime's before-continuation hook.
func OnBefore(handle any) { st.Load().tracker.Before(handle) }

// OnAfter adapts an async runtime's after-continuation hook.
func OnAfter(handle any) { st.Load().tracker.After(handle) }

// NewFileAccessController compiles opts into a root FileAccessController
// wired to the package's current audit and trace sinks and logger.
func NewFileAccessController(opts fileaccess.Options) (*fileaccess.Controller, error) {
	s := st.Load()
	return fileaccess.New(opts, s.audit, s.trace, s.log)
}

// NewFileAccessControllerFromPolicy loads the security-policy file at path
// and compiles it into a root FileAccessController, the same way
// NewFileAccessController does for a directly-built Options.
func NewFileAccessControllerFromPolicy(path string) (*fileaccess.Controller, error) {
	policy, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewFileAccessController(policy.FileAccessOptions())
}

// LineageSnapshot captures the current state of the process-wide
// PromiseTracker as a read-only diagnostic DAG, for callers that want to
// render or inspect the task lineage (e.g. the demo CLI's --lineage-out
// output).
func LineageSnapshot() *lineage.Snapshot {
	return lineage.Take(st.Load().tracker)
}

// ToMatcher compiles pattern into a pathmatch.Matcher. It is exposed only
// for tests that want to exercise the PathMatcher compilation rules
// directly, without going through a FileAccessController.
func ToMatcher(pattern any) (pathmatch.Matcher, error) {
	return pathmatch.Compile(pattern)
}

// PushControllers pushes segments onto the current context's stack as one
// new frame, returning the frame id PopControllers later requires.
func PushControllers(segments map[string]ctxapi.Controller) (string, error) {
	return GetCurrentContext().PushControllers(segments)
}

// PopControllers pops the frame identified by frameID from the current
// context's stack.
func PopControllers(frameID string) error {
	return GetCurrentContext().PopControllers(frameID)
}

// AddFileAccessController builds a FileAccessController from opts and
// attaches it under SegmentFileAccess in container, creating container if
// nil. It returns the (possibly newly created) container.
func AddFileAccessController(container map[string]ctxapi.Controller, opts fileaccess.Options) (map[string]ctxapi.Controller, error) {
	ctrl, err := NewFileAccessController(opts)
	if err != nil {
		return nil, err
	}
	if container == nil {
		container = make(map[string]ctxapi.Controller, 1)
	}
	container[SegmentFileAccess] = ctrl
	return container, nil
}
