// Package config loads a YAML security-policy file into the options
// FileAccessController construction consumes. The strict_controllers and
// strict_segments fields are decoded into Policy, but nothing in this
// repository applies them to an ExecutionContextView. The
// loader follows the teacher's cli.LoadGraphFromFile shape: deterministic,
// no environment or CWD reads, unknown fields rejected rather than
// silently ignored.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"ctxguard/internal/fileaccess"
)

// Policy is the on-disk shape of a security-policy file.
type Policy struct {
	Readable []string `yaml:"readable"`
	Writable []string `yaml:"writable"`
	Listable []string `yaml:"listable"`

	StrictControllers bool `yaml:"strict_controllers"`
	StrictSegments    bool `yaml:"strict_segments"`
}

// Load reads and strictly decodes the policy file at path.
func Load(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}

	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse policy yaml: trailing document")
		}
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}

	return &p, nil
}

// readablePatterns, writablePatterns, and listablePatterns convert a Policy
// string list into the []any shape pathmatch.Compile accepts for its array
// rule; an empty list compiles to "matches nothing", matching the spec's
// empty-array rule.
func (p *Policy) readablePatterns() []any { return toAny(p.Readable) }
func (p *Policy) writablePatterns() []any { return toAny(p.Writable) }
func (p *Policy) listablePatterns() []any { return toAny(p.Listable) }

// ReadablePattern, WritablePattern, and ListablePattern expose the
// uncompiled patterns in the shape fileaccess.Options expects.
func (p *Policy) ReadablePattern() any { return p.readablePatterns() }
func (p *Policy) WritablePattern() any { return p.writablePatterns() }
func (p *Policy) ListablePattern() any { return p.listablePatterns() }

// FileAccessOptions converts p into the fileaccess.Options NewFileAccessController
// consumes directly.
func (p *Policy) FileAccessOptions() fileaccess.Options {
	return fileaccess.Options{
		Readable: p.ReadablePattern(),
		Writable: p.WritablePattern(),
		Listable: p.ListablePattern(),
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
