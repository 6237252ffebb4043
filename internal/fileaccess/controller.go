// Package fileaccess implements FileAccessController, the segment
// controller that enforces read/write/list permissions on paths touched by
// a wrapped call.
package fileaccess

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ctxguard/internal/audit"
	"ctxguard/internal/ctxapi"
	"ctxguard/internal/ctxerr"
	"ctxguard/internal/pathmatch"
	"ctxguard/internal/trace"
)

// Kind names which of the three permission classes a check enforces.
const (
	KindRead  = "read"
	KindWrite = "write"
	KindList  = "list"
)

// Options configures a new Controller's compiled matchers. Any of the three
// fields may be nil or any shape pathmatch.Compile accepts.
type Options struct {
	Readable any
	Writable any
	Listable any
}

// Controller is FileAccessController. Its compiled matchers are immutable
// and shared by every CreateChild-produced descendant; only the per-call
// descriptor differs between a parent and its children.
type Controller struct {
	readable pathmatch.Matcher
	writable pathmatch.Matcher
	listable pathmatch.Matcher

	lineageName string
	descriptor  *descriptor

	auditSink audit.Sink
	traceSink trace.Sink
	log       *zap.Logger

	sequence *uint64 // shared counter across parent and children, for audit ordering
}

// New compiles opts into a root Controller with no attached descriptor.
func New(opts Options, auditSink audit.Sink, traceSink trace.Sink, log *zap.Logger) (*Controller, error) {
	readable, err := pathmatch.Compile(opts.Readable)
	if err != nil {
		return nil, err
	}
	writable, err := pathmatch.Compile(opts.Writable)
	if err != nil {
		return nil, err
	}
	listable, err := pathmatch.Compile(opts.Listable)
	if err != nil {
		return nil, err
	}
	if auditSink == nil {
		auditSink = audit.NopSink{}
	}
	if traceSink == nil {
		traceSink = trace.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	var seq uint64
	return &Controller{
		readable:  readable,
		writable:  writable,
		listable:  listable,
		auditSink: auditSink,
		traceSink: traceSink,
		log:       log,
		sequence:  &seq,
	}, nil
}

// CreateChild decodes data into a request descriptor and returns a new
// Controller sharing the parent's compiled matchers and sinks.
func (c *Controller) CreateChild(data any) (ctxapi.Controller, error) {
	d, err := decodeDescriptor(data)
	if err != nil {
		return nil, err
	}
	child := *c
	child.descriptor = d
	return &child, nil
}

// OnContext enforces SPEC_FULL.md §4.3's seven-step procedure, then invokes
// the wrapped call.
func (c *Controller) OnContext(inv ctxapi.Invocation) (any, error) {
	args := inv.Args()
	d := c.descriptor
	if d == nil {
		d = &descriptor{}
	}

	path := c.normalizedPath(resolvePlaceholder(d.Path, args))
	havePath := path != nil

	if havePath {
		if flags := resolveString(d.Flags, args); flags != "" {
			if err := c.checkFlags(flags, *path); err != nil {
				return nil, err
			}
		}
		if mode := resolveString(d.Mode, args); mode != "" {
			if err := c.checkMode(mode, *path); err != nil {
				return nil, err
			}
		}
	}

	for _, entry := range d.List {
		if err := c.requireEntry(KindList, entry, args); err != nil {
			return nil, err
		}
	}
	for _, entry := range d.Read {
		if err := c.requireEntry(KindRead, entry, args); err != nil {
			return nil, err
		}
	}
	for _, entry := range d.Write {
		if err := c.requireEntry(KindWrite, entry, args); err != nil {
			return nil, err
		}
	}

	return inv.Invoke()
}

// normalizedPath resolves a placeholder result into a normalized path
// string, or nil if the resolved value isn't a usable string.
func (c *Controller) normalizedPath(resolved any) *string {
	s, ok := resolved.(string)
	if !ok {
		return nil
	}
	n := pathmatch.DefaultNormalize(s)
	return &n
}

func resolveString(spec *string, args []any) string {
	v := resolvePlaceholder(spec, args)
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// checkFlags decodes the access-flag string exactly per character —
// presence of 'r' or '+' requires readable, presence of 'w', 'a', or '+'
// requires writable — rather than the source's substring-search bug (see
// SPEC_FULL.md §9).
func (c *Controller) checkFlags(flags, path string) error {
	if strings.ContainsRune(flags, 'r') || strings.ContainsRune(flags, '+') {
		if err := c.require(KindRead, path); err != nil {
			return err
		}
	}
	if strings.ContainsRune(flags, 'w') || strings.ContainsRune(flags, 'a') || strings.ContainsRune(flags, '+') {
		if err := c.require(KindWrite, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) checkMode(mode, path string) error {
	n, err := strconv.ParseInt(mode, 8, 32)
	if err != nil {
		return ctxerr.InvalidOptValue("mode", mode)
	}
	if n&0o444 != 0 {
		if err := c.require(KindRead, path); err != nil {
			return err
		}
	}
	if n&0o222 != 0 {
		if err := c.require(KindWrite, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) requireEntry(kind, entry string, args []any) error {
	resolved := resolvePlaceholder(&entry, args)
	s, ok := resolved.(string)
	if !ok {
		return ctxerr.InvalidArgType(kind, entry)
	}
	return c.require(kind, pathmatch.DefaultNormalize(s))
}

// require checks path against the matcher for kind, recording the decision
// to both sinks, and returns ERR_FILE_ACCESS_FORBIDDEN if the matcher
// rejects it.
func (c *Controller) require(kind, path string) error {
	var matcher pathmatch.Matcher
	switch kind {
	case KindRead:
		matcher = c.readable
	case KindWrite:
		matcher = c.writable
	case KindList:
		matcher = c.listable
	default:
		matcher = func(string) bool { return false }
	}

	allowed := matcher(path)
	seq := c.nextSequence()

	c.traceSink.Record(trace.Event{
		Kind:        "fileaccess." + kind,
		LineageName: c.lineageName,
		Segment:     "fileaccess",
		Detail:      path,
	})
	c.auditSink.Record(audit.Decision{
		LineageName: c.lineageName,
		Segment:     "fileaccess",
		Path:        path,
		Kind:        kind,
		Allowed:     allowed,
		Sequence:    seq,
	})

	if !allowed {
		c.log.Warn("fileaccess: denied", zap.String("kind", kind), zap.String("path", path))
		return ctxerr.FileAccessForbidden(path)
	}
	return nil
}

func (c *Controller) nextSequence() uint64 {
	*c.sequence++
	return *c.sequence
}

// WithLineageName returns a shallow copy of c stamped with lineageName, for
// audit/trace attribution. Nothing else in this repository calls it; a
// controller built without it carries an empty lineage name.
func (c *Controller) WithLineageName(lineageName string) *Controller {
	clone := *c
	clone.lineageName = lineageName
	return &clone
}
