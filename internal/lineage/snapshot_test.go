package lineage

import (
	"testing"

	"ctxguard/internal/promise"
)

func TestSnapshotAcyclic(t *testing.T) {
	tr := promise.New(nil)

	root := "root-handle"
	tr.Init(root, nil)
	tr.Before(root)

	child := "child-handle"
	tr.Init(child, root)

	grandchild := "grandchild-handle"
	tr.Init(grandchild, child)

	snap := Take(tr)
	if !snap.Acyclic() {
		t.Fatalf("expected acyclic snapshot, got cycle %v", snap.Cycle())
	}
	if len(snap.IDs()) != 3 {
		t.Fatalf("want 3 live ids, got %d", len(snap.IDs()))
	}
}

func TestSnapshotDOTIncludesEveryID(t *testing.T) {
	tr := promise.New(nil)
	tr.Init("a", nil)
	tr.Init("b", "a")

	dot := Take(tr).DOT()
	if dot == "" {
		t.Fatal("expected non-empty DOT output")
	}
}
