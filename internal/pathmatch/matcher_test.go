package pathmatch

import (
	"regexp"
	"testing"
)

func TestCompileNilAlwaysFalse(t *testing.T) {
	m, err := Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	if m("/anything") {
		t.Fatal("nil pattern must never match")
	}
}

func TestCompileRegexpObject(t *testing.T) {
	re := regexp.MustCompile(`^/data/.*\.txt$`)
	m, err := Compile(re)
	if err != nil {
		t.Fatal(err)
	}
	if !m("/data/a.txt") {
		t.Fatal("expected regexp match")
	}
	if m("/data/a.bin") {
		t.Fatal("expected regexp mismatch")
	}
}

func TestCompileRePrefixedString(t *testing.T) {
	m, err := Compile(`re:^/data/.*\.txt$`)
	if err != nil {
		t.Fatal(err)
	}
	if !m("/data/a.txt") {
		t.Fatal("expected re: prefix match")
	}
}

func TestCompileDirectoryPrefix(t *testing.T) {
	m, err := Compile("/data/")
	if err != nil {
		t.Fatal(err)
	}
	if !m("/data/sub/file.txt") {
		t.Fatal("expected directory-prefix match")
	}
	if m("/other/file.txt") {
		t.Fatal("expected directory-prefix mismatch")
	}
}

func TestCompileExactLiteral(t *testing.T) {
	m, err := Compile("/data/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !m("/data/file.txt") {
		t.Fatal("expected exact match")
	}
	if m("/data/file.txt/extra") {
		t.Fatal("exact literal must not prefix-match")
	}
}

func TestCompileArrayOfPatterns(t *testing.T) {
	m, err := Compile([]any{"/a/exact", "/b/"})
	if err != nil {
		t.Fatal(err)
	}
	if !m("/a/exact") || !m("/b/nested") {
		t.Fatal("expected OR-combination of array entries to match")
	}
	if m("/c/nope") {
		t.Fatal("expected array mismatch")
	}
}

func TestCompileEmptyArrayAlwaysFalse(t *testing.T) {
	m, err := Compile([]any{})
	if err != nil {
		t.Fatal(err)
	}
	if m("/anything") {
		t.Fatal("empty array pattern must never match")
	}
}

func TestCompileGlobTable(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/a/b/*/", "/a/b/c/d", true},
		{"/a/b/*", "/a/b/c/d", false},
		{"/a/*/c", "/a/b/c", true},
		{"/a/*/c", "/a/b/x/c", false},
		{"/a/*/", "/a/b/c/d/e", true},
		{"/a/file-*.txt", "/a/file-42.txt", true},
		{"/a/file-*.txt", "/a/file-42.bin", false},
	}
	for _, c := range cases {
		m, err := Compile(c.pattern)
		if err != nil {
			t.Fatalf("Compile(%q): %v", c.pattern, err)
		}
		if got := m(c.path); got != c.want {
			t.Errorf("Compile(%q)(%q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestDefaultNormalizePreservesTrailingSeparator(t *testing.T) {
	cases := map[string]string{
		"/a/b/":    "/a/b/",
		"/a/b":     "/a/b",
		"/a/./b/":  "/a/b/",
		"/a/../b/": "/b/",
		"":         ".",
		"/a//b":    "/a/b",
	}
	for in, want := range cases {
		if got := DefaultNormalize(in); got != want {
			t.Errorf("DefaultNormalize(%q) = %q, want %q", in, got, want)
		}
	}
}
