package wire

import (
	"encoding/json"
	"sort"
	"strings"
)

// Action controls descent from a visitor hook.
type Action int

const (
	// Descend continues into the node's children.
	Descend Action = iota
	// Skip prevents descending into an already-identified subtree so its
	// children are not re-interpreted as independent records.
	Skip
)

// Visitor carries the optional hooks for Walk. A nil hook is skipped.
type Visitor struct {
	Array  func(arr []any, depth int) Action
	Object func(obj map[string]any, depth int) Action
	String func(s string, depth int)
}

// Traversal depth bound; malformed or self-referential-looking inputs stop
// descending here instead of growing the stack without limit.
const maxWalkDepth = 64

// Walk visits a decoded JSON value depth-first. Strings that look like
// embedded JSON documents are opportunistically re-parsed and walked,
// which is how the positionally-encoded Gemini payloads nest real data
// inside string slots.
func Walk(v any, vis Visitor) {
	walk(v, vis, 0)
}

func walk(v any, vis Visitor, depth int) {
	if depth > maxWalkDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		if vis.Array != nil && vis.Array(t, depth) == Skip {
			return
		}
		for _, child := range t {
			walk(child, vis, depth+1)
		}
	case map[string]any:
		if vis.Object != nil && vis.Object(t, depth) == Skip {
			return
		}
		// Sorted keys: map iteration order is randomized and callers
		// synthesize ordering from visit order.
		for _, k := range SortedKeys(t) {
			walk(t[k], vis, depth+1)
		}
	case string:
		if vis.String != nil {
			vis.String(t, depth)
		}
		if embedded, ok := EmbeddedJSON(t); ok {
			walk(embedded, vis, depth+1)
		}
	}
}

// SortedKeys returns an object's keys in sorted order for reproducible
// traversal.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EmbeddedJSON decodes strings that carry a nested JSON document,
// reporting false for plain text.
func EmbeddedJSON(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 {
		return nil, false
	}
	first := trimmed[0]
	if first != '[' && first != '{' {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case []any, map[string]any:
		return v, true
	}
	return nil, false
}
