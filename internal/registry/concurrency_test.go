package registry

import (
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"ctxguard/internal/promise"
)

// TestMain verifies that the errgroup-driven concurrency test below leaves
// no goroutines running past its own completion.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestConcurrentLineageIsolation runs several goroutines at once, each with
// its own tracker and registry, forks and starts a lineage in each, and
// asserts that each goroutine's current view carries the strictness flags
// its own fork asked for. The production model is single-threaded
// cooperative (SPEC_FULL.md §5); this test exercises the registry the way
// a host embedding it across multiple OS threads, each with its own
// tracker, would.
func TestConcurrentLineageIsolation(t *testing.T) {
	const lineages = 8

	var g errgroup.Group
	for i := 0; i < lineages; i++ {
		i := i
		g.Go(func() error {
			tracker := promise.New(nil)
			reg := New(tracker, nil)

			// Task id 0 is bound to the default lineage by New; the
			// lineage is started from inside a live task.
			tracker.Init("task", nil)
			tracker.Before("task")

			name, err := reg.ForkForPromise(true, false)
			if err != nil {
				return err
			}
			if err := reg.StartPromise(name); err != nil {
				return err
			}

			view := reg.GetCurrentContext()
			if !view.IsStrictControllers() {
				t.Errorf("lineage %d: expected strict controllers after fork(true, false)", i)
			}
			if view.IsStrictSegments() {
				t.Errorf("lineage %d: strict segments must not be upgraded by fork(true, false)", i)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
}
