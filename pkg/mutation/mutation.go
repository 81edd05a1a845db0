package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/textjianghu/jianghu-engine/pkg/fieldpath"
)

// Op is one of a closed set of primitive world-state changes. The applier
// only needs to realize these four variants; the narrative meaning of a
// directive never leaks below the interpreter.
type Op interface {
	isOp()
}

// SetField unconditionally overwrites the value at Path.
type SetField struct {
	Path  fieldpath.Path
	Value any
}

// IncrementField performs a read-modify-write on a numeric leaf.
// Delta may be negative. A missing leaf is treated as zero.
type IncrementField struct {
	Path  fieldpath.Path
	Delta float64
}

// CreateEntity inserts a new record into a top-level namespace
// (npcs, locations). An existing id is never overwritten: ids stay
// bound to the same entity for the lifetime of the session.
type CreateEntity struct {
	Namespace string
	ID        string
	Record    map[string]any
}

// AppendToArray appends Value to the array at Path, preserving order
// and tolerating duplicates. Used for logs and append-only lists.
type AppendToArray struct {
	Path  fieldpath.Path
	Value any
}

func (SetField) isOp()       {}
func (IncrementField) isOp() {}
func (CreateEntity) isOp()   {}
func (AppendToArray) isOp()  {}

// Apply realizes ops against a decoded document in order. It never fails:
// recoverable problems (id collisions, non-numeric increment targets,
// type mismatches) are reported as warnings and the remaining ops still
// run. Intermediate maps are created on demand because narrative-driven
// schemas are not known in advance.
func Apply(doc map[string]any, ops []Op) []string {
	var warnings []string
	for _, op := range ops {
		switch o := op.(type) {
		case SetField:
			parent, ok := ensureParent(doc, o.Path)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("set %s: cannot resolve parent container", o.Path))
				continue
			}
			parent[o.Path.Leaf()] = o.Value

		case IncrementField:
			parent, ok := ensureParent(doc, o.Path)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("increment %s: cannot resolve parent container", o.Path))
				continue
			}
			leaf := o.Path.Leaf()
			current, numeric := toFloat(parent[leaf])
			if parent[leaf] != nil && !numeric {
				warnings = append(warnings, fmt.Sprintf("increment %s: existing value %v is not numeric, resetting", o.Path, parent[leaf]))
				current = 0
			}
			parent[leaf] = current + o.Delta

		case CreateEntity:
			ns, ok := doc[o.Namespace].(map[string]any)
			if !ok {
				ns = make(map[string]any)
				doc[o.Namespace] = ns
			}
			if _, exists := ns[o.ID]; exists {
				warnings = append(warnings, fmt.Sprintf("create %s.%s: id already exists, skipping", o.Namespace, o.ID))
				continue
			}
			ns[o.ID] = o.Record

		case AppendToArray:
			parent, ok := ensureParent(doc, o.Path)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("append %s: cannot resolve parent container", o.Path))
				continue
			}
			leaf := o.Path.Leaf()
			arr, isArr := parent[leaf].([]any)
			if parent[leaf] != nil && !isArr {
				warnings = append(warnings, fmt.Sprintf("append %s: existing value is not an array, replacing", o.Path))
				arr = nil
			}
			parent[leaf] = append(arr, o.Value)

		default:
			// The variant set is closed; anything else is a programming error.
			warnings = append(warnings, fmt.Sprintf("unknown mutation op %T, skipping", op))
		}
	}
	return warnings
}

// ensureParent walks the path down to the leaf's parent container,
// creating intermediate maps as needed. A non-map intermediate is
// replaced, since a leaf cannot hold children.
func ensureParent(doc map[string]any, p fieldpath.Path) (map[string]any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	current := doc
	for _, seg := range p.Parent() {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	return current, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// IsNumeric reports whether a decoded JSON value is a number. The
// interpreter uses it to decide between SetField and IncrementField.
func IsNumeric(v any) (float64, bool) {
	return toFloat(v)
}
