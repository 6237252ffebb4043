// Package ctxview implements one execution-context view: a segment stack
// plus the strictness flags that govern how RunInContext behaves when a
// requested segment has no registered controller.
package ctxview

import (
	"ctxguard/internal/ctxapi"
	"ctxguard/internal/ctxerr"
	"ctxguard/internal/ctxstack"
)

// SegmentOption names one segment to invoke for a RunInContext call, along
// with the data its controller's CreateChild should be built from.
//
// This is a slice, not a map, by design: SPEC_FULL.md §4.5 requires segment
// options to be applied in declaration order, and Go map iteration order is
// randomized, so an ordered slice is the only faithful translation.
type SegmentOption struct {
	Name string
	Data any
}

// View is one lineage's live execution context: a stack of pushed frames
// plus the two strictness flags inherited (and possibly upgraded) across
// forks.
type View struct {
	stack             *ctxstack.Stack
	strictControllers bool
	strictSegments    bool
}

// New returns an empty View with the given strictness flags.
func New(strictControllers, strictSegments bool) *View {
	return &View{
		stack:             ctxstack.NewStack(),
		strictControllers: strictControllers,
		strictSegments:    strictSegments,
	}
}

// IsStrictControllers reports whether PushControllers rejects a segment
// name that shadows one already resolvable via Lookup.
func (v *View) IsStrictControllers() bool { return v.strictControllers }

// IsStrictSegments reports whether RunInContext errors (rather than skips)
// when a declared segment has no registered controller.
func (v *View) IsStrictSegments() bool { return v.strictSegments }

// PushControllers pushes segments (already-built controllers, e.g. from
// AddFileAccessController) as a new frame. In strict-controllers mode, any
// name in segments that already resolves via Lookup is rejected —
// push_controllers must not silently shadow an existing binding.
func (v *View) PushControllers(segments map[string]ctxapi.Controller) (string, error) {
	if v.strictControllers {
		for name := range segments {
			if _, ok := v.stack.Lookup(name); ok {
				return "", ctxerr.InvalidOptValue("segment", name)
			}
		}
	}
	return v.stack.Push(segments), nil
}

// PopControllers pops the frame identified by frameID.
func (v *View) PopControllers(frameID string) error {
	return v.stack.Pop(frameID)
}

// Fork returns a new View wrapping a flattened copy of v's stack (most
// recently pushed controller per segment name wins) installed under
// frameID, with strictness flags or'd with v's: a true argument upgrades, a
// false argument preserves the current value — strictness only ever
// ratchets up across a fork, never down.
func (v *View) Fork(frameID string, strictControllers, strictSegments bool) *View {
	return &View{
		stack:             v.stack.Fork(frameID),
		strictControllers: v.strictControllers || strictControllers,
		strictSegments:    v.strictSegments || strictSegments,
	}
}

// RunInContext builds the invocation chain over call and runs it:
//
//  1. Start from InnerInvocation(call, args).
//  2. For each segment name in segmentOpts, in declaration order: look up
//     its controller (before the new frame is pushed); if absent and
//     strict-segments, fail; if absent and not strict, skip. Otherwise call
//     CreateChild(data) to get a per-call controller, and wrap the chain
//     built so far in a CompositeInvocation around that child.
//  3. Push every created child as one new frame.
//  4. Invoke the outermost link. Whatever the outcome, pop that frame
//     before returning or propagating.
//
// Because each wrap in step 2 becomes the new outermost link, the LAST
// segment iterated ends up outermost and therefore runs first —
// SPEC_FULL.md §4.5's "outermost-first" order is last-declared-runs-first,
// not first-declared-runs-first.
func (v *View) RunInContext(segmentOpts []SegmentOption, call Callable, args []any) (any, error) {
	var chain ctxapi.Invocation = &innerInvocation{args: args, call: call}
	children := make(map[string]ctxapi.Controller, len(segmentOpts))

	for _, opt := range segmentOpts {
		parent, ok := v.stack.Lookup(opt.Name)
		if !ok {
			if v.strictSegments {
				return nil, ctxerr.InvalidArgValue("segment", opt.Name)
			}
			continue
		}
		child, err := parent.CreateChild(opt.Data)
		if err != nil {
			return nil, err
		}
		children[opt.Name] = child
		chain = &compositeInvocation{args: args, controller: child, next: chain}
	}

	frameID := v.stack.Push(children)
	defer v.stack.Pop(frameID)

	return chain.Invoke()
}
