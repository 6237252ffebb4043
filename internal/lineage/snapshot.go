// Package lineage builds a read-only, point-in-time view of the parent/child
// graph inside a PromiseTracker, for diagnostics: a DOT rendering and a
// cycle-freedom check. It is adapted from the teacher's dag.TaskGraph and
// dag.validateAcyclic — the same canonical-index, Kahn's-algorithm,
// colored-DFS machinery, applied to task ids instead of named build tasks.
//
// Unlike the teacher's TaskGraph, a Snapshot is never validated into
// existence: it is taken from whatever the tracker happens to hold right
// now, and the cycle check is a belt-and-suspenders runtime assertion run
// by tests, never consulted on the hot path — a
// PromiseTracker cannot actually produce a cycle, because a task's parent
// id is always either 0 or a strictly smaller, already-live id.
package lineage

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"ctxguard/internal/promise"
)

// Snapshot is an immutable DAG view built from one Tracker.Snapshot() call.
type Snapshot struct {
	ids      []promise.TaskID // canonical order: ascending id
	index    map[promise.TaskID]int
	outgoing [][]int // parent -> children, by canonical index
	incoming [][]int // child -> parent, by canonical index (at most one entry)
	indeg    []int
}

// Take captures the current state of tracker.
func Take(tracker *promise.Tracker) *Snapshot {
	parents := tracker.Snapshot()

	ids := make([]promise.TaskID, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[promise.TaskID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	outgoing := make([][]int, len(ids))
	incoming := make([][]int, len(ids))
	indeg := make([]int, len(ids))

	for id, parentID := range parents {
		if parentID == 0 {
			continue
		}
		pIdx, ok := index[parentID]
		if !ok {
			// Parent already destroyed (active_count reached 0); the edge
			// is stale and is simply not represented in this snapshot.
			continue
		}
		cIdx := index[id]
		outgoing[pIdx] = append(outgoing[pIdx], cIdx)
		incoming[cIdx] = append(incoming[cIdx], pIdx)
		indeg[cIdx]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}

	return &Snapshot{ids: ids, index: index, outgoing: outgoing, incoming: incoming, indeg: indeg}
}

// IDs returns the live task ids in canonical (ascending) order.
func (s *Snapshot) IDs() []promise.TaskID {
	out := make([]promise.TaskID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Acyclic reports whether the snapshot's parent graph contains no cycle. It
// always returns true for a snapshot taken from a real Tracker, by
// construction; the check exists as a runtime assertion, not a control-flow
// dependency.
func (s *Snapshot) Acyclic() bool {
	return len(s.topoOrderIndices()) == len(s.ids)
}

// Cycle returns one witness cycle (as task ids) if Acyclic is false, or nil
// otherwise.
func (s *Snapshot) Cycle() []promise.TaskID {
	if s.Acyclic() {
		return nil
	}
	idxCycle := s.findCycleDeterministic()
	out := make([]promise.TaskID, len(idxCycle))
	for i, idx := range idxCycle {
		out[i] = s.ids[idx]
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm with a min-heap ready queue, for a
// deterministic topological order over canonical indices.
func (s *Snapshot) topoOrderIndices() []int {
	indeg := make([]int, len(s.indeg))
	copy(indeg, s.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		out = append(out, u)
		for _, v := range s.outgoing[u] {
			indeg[v]--
			if indeg[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return out
}

// findCycleDeterministic extracts one cycle witness via colored DFS.
func (s *Snapshot) findCycleDeterministic() []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(s.ids))
	parent := make([]int, len(s.ids))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range s.outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range s.ids {
		if color[i] == white && dfs(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return nil
	}
	rev := make([]int, len(cycle))
	for i := range cycle {
		rev[i] = cycle[len(cycle)-1-i]
	}
	return rev
}

// DOT renders the snapshot as a Graphviz "dot" document, for the demo CLI's
// diagnostic output.
func (s *Snapshot) DOT() string {
	var b strings.Builder
	b.WriteString("digraph lineage {\n")
	for _, id := range s.ids {
		fmt.Fprintf(&b, "  %d;\n", id)
	}
	for pIdx, children := range s.outgoing {
		for _, cIdx := range children {
			fmt.Fprintf(&b, "  %d -> %d;\n", s.ids[pIdx], s.ids[cIdx])
		}
	}
	b.WriteString("}\n")
	return b.String()
}
