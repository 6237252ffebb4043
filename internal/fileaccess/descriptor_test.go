package fileaccess

import "testing"

func TestDecodeDescriptorWrapsBareStringIntoSlice(t *testing.T) {
	d, err := decodeDescriptor(map[string]any{"read": "/data/a.txt"})
	if err != nil {
		t.Fatalf("decodeDescriptor: %v", err)
	}
	if len(d.Read) != 1 || d.Read[0] != "/data/a.txt" {
		t.Fatalf("Read = %v, want a single-element slice", d.Read)
	}
}

func TestDecodeDescriptorNilDataIsEmpty(t *testing.T) {
	d, err := decodeDescriptor(nil)
	if err != nil {
		t.Fatalf("decodeDescriptor: %v", err)
	}
	if d.Path != nil || len(d.Read) != 0 || len(d.Write) != 0 || len(d.List) != 0 {
		t.Fatalf("expected a zero-value descriptor, got %+v", d)
	}
}

func TestDecodeDescriptorRejectsWrongShape(t *testing.T) {
	if _, err := decodeDescriptor(map[string]any{"read": 42}); err == nil {
		t.Fatal("expected an error for a non-string, non-slice read field")
	}
}

func strptr(s string) *string { return &s }

func TestResolvePlaceholderIndex(t *testing.T) {
	args := []any{"first", "second"}
	if got := resolvePlaceholder(strptr("{0}"), args); got != "first" {
		t.Fatalf("{0} = %v, want %q", got, "first")
	}
	if got := resolvePlaceholder(strptr("{1}"), args); got != "second" {
		t.Fatalf("{1} = %v, want %q", got, "second")
	}
}

func TestResolvePlaceholderIndexOutOfRange(t *testing.T) {
	args := []any{"only"}
	if got := resolvePlaceholder(strptr("{5}"), args); got != nil {
		t.Fatalf("{5} = %v, want nil", got)
	}
}

func TestResolvePlaceholderIndexKey(t *testing.T) {
	args := []any{map[string]any{"path": "/data/a.txt"}}
	if got := resolvePlaceholder(strptr("{0.path}"), args); got != "/data/a.txt" {
		t.Fatalf("{0.path} = %v, want %q", got, "/data/a.txt")
	}
}

func TestResolvePlaceholderIndexKeyNonRecord(t *testing.T) {
	args := []any{"not-a-record"}
	if got := resolvePlaceholder(strptr("{0.path}"), args); got != nil {
		t.Fatalf("{0.path} against a non-record arg = %v, want nil", got)
	}
}

func TestResolvePlaceholderIndexKeyMissingField(t *testing.T) {
	args := []any{map[string]any{"other": 1}}
	if got := resolvePlaceholder(strptr("{0.path}"), args); got != nil {
		t.Fatalf("{0.path} with a missing key = %v, want nil", got)
	}
}

func TestResolvePlaceholderLiteralPassthrough(t *testing.T) {
	args := []any{"ignored"}
	if got := resolvePlaceholder(strptr("/data/literal.txt"), args); got != "/data/literal.txt" {
		t.Fatalf("literal spec = %v, want unchanged", got)
	}
}

func TestResolvePlaceholderNilSpec(t *testing.T) {
	if got := resolvePlaceholder(nil, nil); got != nil {
		t.Fatalf("nil spec = %v, want nil", got)
	}
}
