// Package ctxstack implements the segmented frame stack that backs one
// execution-context lineage: a sequence of pushed frames, each mapping
// segment name to a live Controller, searched top-down on lookup.
package ctxstack

import (
	"strings"

	"github.com/google/uuid"

	"ctxguard/internal/ctxapi"
	"ctxguard/internal/ctxerr"
)

// Frame is one pushed layer of the stack. ID is an opaque token returned by
// Push and required by the matching Pop, guarding against mismatched
// push/pop pairs across a call chain.
type Frame struct {
	ID       string
	Segments map[string]ctxapi.Controller
}

// Stack is a mutable, ordered sequence of Frames. It is not safe for
// concurrent use, and ctxview.View adds no locking around it.
type Stack struct {
	frames []*Frame
}

// NewStack returns an empty Stack.
func NewStack() *Stack {
	return &Stack{}
}

// NewFrameID mints a frame id: a 32-character token drawn from
// [0-9A-Za-z] (SPEC_FULL.md §3/§4.4). A v4 UUID's hyphens are stripped,
// leaving exactly 32 lowercase-hex characters — a subset of the required
// alphabet. Shared by Push and by registry.ForkForPromise, which mints a
// frame id before the frame it names exists.
func NewFrameID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Push appends a new frame holding segments and returns its id, to be
// supplied to the matching Pop.
func (s *Stack) Push(segments map[string]ctxapi.Controller) string {
	id := NewFrameID()
	s.frames = append(s.frames, &Frame{ID: id, Segments: segments})
	return id
}

// Pop removes the top frame, which must match frameID exactly — a
// structural guarantee that push/pop pairs nest correctly even across
// panicking call chains recovered elsewhere.
func (s *Stack) Pop(frameID string) error {
	if len(s.frames) == 0 {
		return ctxerr.IndexOutOfRange("frame")
	}
	top := s.frames[len(s.frames)-1]
	if top.ID != frameID {
		return ctxerr.InvalidArgValue("frameID", frameID)
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Lookup searches frames top-down (most recently pushed first) for segment,
// returning its Controller and true, or false if no frame carries it.
func (s *Stack) Lookup(segment string) (ctxapi.Controller, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if c, ok := s.frames[i].Segments[segment]; ok {
			return c, true
		}
	}
	return nil, false
}

// Snapshot returns the live frames, outermost first, for forking.
func (s *Stack) Snapshot() []*Frame {
	return s.frames
}

// Fork builds a new Stack carrying the flattened view of s: a single
// synthetic frame holding, for each segment name, the most recently pushed
// Controller for that name. The new frame is stamped with newFrameID rather
// than a fresh uuid, so the caller controls the id it will later Pop.
func (s *Stack) Fork(newFrameID string) *Stack {
	flattened := make(map[string]ctxapi.Controller)
	for _, f := range s.frames {
		for name, c := range f.Segments {
			flattened[name] = c
		}
	}
	return &Stack{frames: []*Frame{{ID: newFrameID, Segments: flattened}}}
}

// Depth reports the number of live frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}
