package fieldpath

import (
	"fmt"
	"sort"
	"strings"
)

// Path addresses a single value inside a nested document as an ordered
// sequence of map-key segments. Segments cannot contain literal dots;
// directive payload authors must avoid them.
type Path []string

// New builds a Path from individual segments.
func New(segments ...string) Path {
	p := make(Path, len(segments))
	copy(p, segments)
	return p
}

// Parse splits a dotted path string into a Path.
// Empty strings and empty segments are rejected.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("field path cannot be empty")
	}
	segments := strings.Split(s, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("field path %q contains an empty segment", s)
		}
	}
	return Path(segments), nil
}

// String renders the path in dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new Path with the given segments appended.
// The receiver is not modified.
func (p Path) Child(segments ...string) Path {
	child := make(Path, 0, len(p)+len(segments))
	child = append(child, p...)
	child = append(child, segments...)
	return child
}

// Parent returns the path without its final segment.
// The parent of a single-segment path is the empty path (document root).
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Leaf returns the final segment of the path.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Flatten converts a possibly-nested map into leaf values keyed by dotted
// path, relative to the map root. Keys that already contain dots are kept
// as-is, so payloads may mix nested objects and pre-dotted keys. The
// returned keys are sorted so callers get a deterministic order.
func Flatten(m map[string]any) (keys []string, values map[string]any) {
	values = make(map[string]any)
	flattenInto("", m, values)
	keys = make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, values
}

func flattenInto(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(key, nested, out)
			continue
		}
		out[key] = v
	}
}
