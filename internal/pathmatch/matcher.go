// Package pathmatch compiles file-path patterns into predicates.
//
// A pattern may be nil, a *regexp.Regexp, a "re:"-prefixed string, a plain
// string (literal, directory-prefix, or glob depending on shape), or a slice
// of any of the above (OR-combined). See SPEC_FULL.md §4.2 for the full rule
// table; this file implements it rule-for-rule.
package pathmatch

import (
	"regexp"
	"strings"

	"ctxguard/internal/ctxerr"
)

// Matcher reports whether path satisfies a compiled pattern.
type Matcher func(path string) bool

// DefaultNormalize mimics Node's path.normalize: it collapses "." and ".."
// segments and redundant separators, but — unlike Go's path.Clean — it
// preserves a trailing separator when the input had one. Rule 4
// (directory-prefix) and rule 6 (glob) both depend on that trailing slash
// surviving normalization.
func DefaultNormalize(p string) string {
	if p == "" {
		return "."
	}

	trailingSlash := strings.HasSuffix(p, "/")
	leadingSlash := strings.HasPrefix(p, "/")

	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !leadingSlash {
				out = append(out, "..")
			}
		default:
			out = append(out, part)
		}
	}

	joined := strings.Join(out, "/")
	switch {
	case leadingSlash:
		joined = "/" + joined
	case joined == "":
		joined = "."
	}
	if trailingSlash && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// Compiler compiles patterns using a configurable normalizer. The
// zero-value Compiler uses DefaultNormalize.
type Compiler struct {
	Normalize func(string) string
}

// NewCompiler returns a Compiler using DefaultNormalize.
func NewCompiler() *Compiler {
	return &Compiler{Normalize: DefaultNormalize}
}

func (c *Compiler) normalize() func(string) string {
	if c.Normalize != nil {
		return c.Normalize
	}
	return DefaultNormalize
}

// Compile turns pattern into a Matcher following the rule order from
// SPEC_FULL.md §4.2:
//
//  1. nil                -> always false
//  2. *regexp.Regexp     -> MatchString
//  3. string "re:<expr>" -> compile <expr>, MatchString
//  4. string, no wildcard, trailing separator -> directory-prefix match
//  5. string, no wildcard                     -> exact match (after normalize)
//  6. string, contains a wildcard ('*' or '?') -> glob match
//  7. []any               -> OR of sub-matchers compiled recursively;
//     an empty slice always compiles to false.
func (c *Compiler) Compile(pattern any) (Matcher, error) {
	norm := c.normalize()

	switch v := pattern.(type) {
	case nil:
		return func(string) bool { return false }, nil

	case *regexp.Regexp:
		re := v
		return func(p string) bool { return re.MatchString(p) }, nil

	case string:
		return c.compileString(v, norm)

	case []any:
		if len(v) == 0 {
			return func(string) bool { return false }, nil
		}
		subs := make([]Matcher, 0, len(v))
		for _, sub := range v {
			m, err := c.Compile(sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, m)
		}
		return func(p string) bool {
			for _, m := range subs {
				if m(p) {
					return true
				}
			}
			return false
		}, nil

	default:
		return nil, ctxerr.InvalidArgType("pattern", pattern)
	}
}

func (c *Compiler) compileString(s string, norm func(string) string) (Matcher, error) {
	if rest, ok := strings.CutPrefix(s, "re:"); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			return nil, ctxerr.InvalidArgValue("pattern", s)
		}
		return func(p string) bool { return re.MatchString(p) }, nil
	}

	if hasWildcard(s) {
		return c.compileGlob(s, norm), nil
	}

	if strings.HasSuffix(s, "/") {
		prefix := norm(s)
		return func(p string) bool {
			np := norm(p)
			return strings.HasPrefix(np, prefix)
		}, nil
	}

	literal := norm(s)
	return func(p string) bool { return norm(p) == literal }, nil
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// compileGlob implements SPEC_FULL.md §4.2 rule 6. The normalized pattern is
// split on '/' or '\\' WITHOUT dropping empty segments first: a trailing
// empty segment — the pattern ended in a separator — becomes the sentinel
// "match any sequence of subsequent segments"; it is never spelled as a
// literal "**" in the pattern text. Every other non-empty segment compiles
// to an anchored regex ('?' -> any single char, '*' -> any run of chars,
// everything else escaped). Matching advances in lock-step over pattern
// segments and the path's non-empty segments; both sides must terminate
// together unless the sentinel is reached first.
func (c *Compiler) compileGlob(pattern string, norm func(string) string) Matcher {
	rawSegs := splitOnSeparators(norm(pattern))

	sentinel := false
	if len(rawSegs) > 0 && rawSegs[len(rawSegs)-1] == "" {
		sentinel = true
		rawSegs = rawSegs[:len(rawSegs)-1]
	}

	segments := make([]*regexp.Regexp, 0, len(rawSegs))
	for _, seg := range rawSegs {
		if seg == "" {
			continue
		}
		segments = append(segments, compileSegmentRegexp(seg))
	}

	return func(path string) bool {
		pathSegs := filterNonEmpty(splitOnSeparators(norm(path)))
		return matchSegments(segments, sentinel, pathSegs)
	}
}

func splitOnSeparators(p string) []string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.Split(p, "/")
}

func filterNonEmpty(segs []string) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// compileSegmentRegexp turns one glob segment into a fully-anchored regex:
// '?' becomes '.', '*' becomes '.*?', and every other character is escaped
// literally.
func compileSegmentRegexp(seg string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range seg {
		switch r {
		case '?':
			b.WriteString(".")
		case '*':
			b.WriteString(".*?")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func matchSegments(segments []*regexp.Regexp, sentinel bool, path []string) bool {
	for i, seg := range segments {
		if i >= len(path) {
			return false
		}
		if !seg.MatchString(path[i]) {
			return false
		}
	}
	if sentinel {
		return true
	}
	return len(path) == len(segments)
}

// defaultCompiler is the package-level convenience compiler.
var defaultCompiler = NewCompiler()

// Compile compiles pattern using DefaultNormalize.
func Compile(pattern any) (Matcher, error) {
	return defaultCompiler.Compile(pattern)
}
