package fileaccess

import (
	"reflect"
	"regexp"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"ctxguard/internal/ctxerr"
)

// descriptor is the per-call request attached by CreateChild. Each path-spec
// field (Path, and every entry of Read/Write/List) is either a literal
// string or a placeholder token resolved against the invocation's args by
// resolvePlaceholder before it is matched.
type descriptor struct {
	Read  []string `mapstructure:"read"`
	Write []string `mapstructure:"write"`
	List  []string `mapstructure:"list"`
	Flags *string  `mapstructure:"flags"`
	Path  *string  `mapstructure:"path"`
	Mode  *string  `mapstructure:"mode"`
}

// decodeDescriptor decodes the loosely-typed data supplied to CreateChild
// into a descriptor. A bare string for read/write/list is wrapped into a
// one-element slice (the weak-decode hook below); anything else that
// doesn't fit the expected shape surfaces as ERR_INVALID_ARG_TYPE naming the
// "descriptor" argument and carrying the whole data value, rather than
// mapstructure's own error text. The offending field is not named.
func decodeDescriptor(data any) (*descriptor, error) {
	if data == nil {
		return &descriptor{}, nil
	}

	var d descriptor
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		DecodeHook:       stringToSliceHook,
		ErrorUnused:      false,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, ctxerr.InvalidArgType("descriptor", data)
	}
	return &d, nil
}

// stringToSliceHook wraps a bare string into a one-element []string when the
// target field is a string slice — the only weakly-typed coercion the
// spec's taxonomy permits for read/write/list.
func stringToSliceHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.String {
		return []string{data.(string)}, nil
	}
	return data, nil
}

var (
	indexPlaceholder    = regexp.MustCompile(`^\{(\d+)\}$`)
	indexKeyPlaceholder = regexp.MustCompile(`^\{(\d+)\.([A-Za-z_][A-Za-z0-9_]*)\}$`)
)

// resolvePlaceholder implements SPEC_FULL.md §4.3's resolve_placeholder:
// "{N}" resolves to args[N] (nil if out of range); "{N.key}" resolves to
// args[N][key] when args[N] is record-like (nil otherwise); any other
// string is returned unchanged.
func resolvePlaceholder(spec *string, args []any) any {
	if spec == nil {
		return nil
	}
	s := *spec

	if m := indexPlaceholder.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 0 || n >= len(args) {
			return nil
		}
		return args[n]
	}

	if m := indexKeyPlaceholder.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		key := m[2]
		if n < 0 || n >= len(args) {
			return nil
		}
		return lookupRecordField(args[n], key)
	}

	return s
}

func lookupRecordField(v any, key string) any {
	switch rec := v.(type) {
	case map[string]any:
		val, ok := rec[key]
		if !ok {
			return nil
		}
		return val
	default:
		return nil
	}
}
