package registry

import (
	"testing"

	"ctxguard/internal/promise"
)

func TestGetCurrentContextWalksParentChain(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	name, err := r.ForkForPromise(false, false)
	if err != nil {
		t.Fatalf("ForkForPromise: %v", err)
	}

	tr.Init("outer", nil)
	tr.Init("inner", "outer")

	tr.Before("outer")
	if err := r.StartPromise(name); err != nil {
		t.Fatalf("StartPromise: %v", err)
	}
	tr.Before("inner")

	got := r.GetCurrentContext()
	want := r.lineageViews[name]
	if got != want {
		t.Fatal("expected the inner task to resolve to its ancestor's bound lineage")
	}

	tr.After("inner")
	tr.After("outer")
}

func TestGetCurrentContextFallsBackToDefault(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	tr.Init("untracked", nil)
	tr.Before("untracked")

	got := r.GetCurrentContext()
	if got != r.lineageViews[DefaultLineageName] {
		t.Fatal("expected an unbound task chain to fall back to the default lineage")
	}
}

func TestStartPromiseRejectsUnknownLineage(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	if err := r.StartPromise("never-forked"); err == nil {
		t.Fatal("expected an error for an unknown lineage name")
	}
}

func TestStartPromiseRejectsDoubleBinding(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	// Task id 0 is bound to the default lineage by New, so the binding
	// under test is made from inside a live task.
	tr.Init("task", nil)
	tr.Before("task")

	name, err := r.ForkForPromise(false, false)
	if err != nil {
		t.Fatalf("ForkForPromise: %v", err)
	}
	if err := r.StartPromise(name); err != nil {
		t.Fatalf("first StartPromise: %v", err)
	}
	if err := r.StartPromise(name); err == nil {
		t.Fatal("expected the current task to already be bound")
	}
}

func TestEndPromiseReportsWhetherAnythingRemoved(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	if r.EndPromise("never-existed") {
		t.Fatal("expected false for a lineage that was never forked")
	}

	name, err := r.ForkForPromise(false, false)
	if err != nil {
		t.Fatalf("ForkForPromise: %v", err)
	}
	if !r.EndPromise(name) {
		t.Fatal("expected true when removing a forked lineage")
	}
	if _, ok := r.lineageViews[name]; ok {
		t.Fatal("expected the lineage view to be gone")
	}
}

func TestResetRestoresDefaultOnly(t *testing.T) {
	tr := promise.New(nil)
	r := New(tr, nil)

	if _, err := r.ForkForPromise(false, false); err != nil {
		t.Fatalf("ForkForPromise: %v", err)
	}
	r.Reset()

	if len(r.lineageViews) != 1 {
		t.Fatalf("expected only the default lineage after Reset, got %d", len(r.lineageViews))
	}
	if _, ok := r.lineageViews[DefaultLineageName]; !ok {
		t.Fatal("expected the default lineage to survive Reset")
	}
}
