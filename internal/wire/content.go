package wire

import "strings"

// FlattenContent reduces the known message-content shapes to one plain
// string: direct strings, {text: ...} objects, parts arrays, and arrays of
// string or typed block objects. Fragments are joined with newlines and
// empty fragments discarded.
func FlattenContent(v any) string {
	var parts []string
	collectContent(v, &parts, 0)
	return strings.Join(parts, "\n")
}

func collectContent(v any, parts *[]string, depth int) {
	if depth > 6 {
		return
	}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			*parts = append(*parts, s)
		}
	case []any:
		for _, item := range t {
			collectContent(item, parts, depth+1)
		}
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				*parts = append(*parts, s)
			}
			return
		}
		for _, key := range []string{"parts", "content", "blocks"} {
			if nested, ok := t[key]; ok {
				collectContent(nested, parts, depth+1)
				return
			}
		}
	}
}

// Truncate shortens a string to at most n runes, appending an ellipsis
// when anything was cut.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

// Str returns the first non-empty string field among keys.
func Str(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Field returns the first present field among keys.
func Field(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Dig walks nested objects by key, returning nil when any hop is missing.
func Dig(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}
