package ctxview

import "ctxguard/internal/ctxapi"

// Callable is the wrapped operation RunInContext carries through the
// Controller chain. It collapses the distilled spec's "this, fn, args"
// triple into a single closure: callers close over whatever receiver they
// need instead of passing it separately.
type Callable func(args []any) (any, error)

// innerInvocation is the base link: Invoke calls the wrapped Callable
// directly.
type innerInvocation struct {
	args []any
	call Callable
}

func (i *innerInvocation) Args() []any          { return i.args }
func (i *innerInvocation) Invoke() (any, error) { return i.call(i.args) }

// compositeInvocation wraps a Controller's OnContext around the next link in
// (next) is itself an ctxapi.Invocation — either another compositeInvocation
// or the innerInvocation at the bottom.
type compositeInvocation struct {
	args       []any
	controller ctxapi.Controller
	next       ctxapi.Invocation
}

func (c *compositeInvocation) Args() []any { return c.args }
func (c *compositeInvocation) Invoke() (any, error) {
	return c.controller.OnContext(c.next)
}
