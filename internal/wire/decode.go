package wire

import (
	"encoding/json"
	"strings"
)

// Anti-hijacking guard prefixes some Google endpoints prepend to JSON bodies.
var guardPrefixes = []string{
	")]}'\n",
	")]}'",
	")]}\n",
}

// StripGuardPrefix removes a known anti-hijacking prefix from a raw body.
func StripGuardPrefix(s string) string {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	for _, prefix := range guardPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimLeft(trimmed[len(prefix):], "\r\n")
		}
	}
	return trimmed
}

// Decode turns a captured payload into a decoded JSON value. Strings are
// stripped of guard prefixes and parsed; already-decoded values pass
// through untouched. It reports false when nothing parseable remains.
func Decode(raw any) (any, bool) {
	switch t := raw.(type) {
	case nil:
		return nil, false
	case string:
		candidates := DecodeCandidates(t)
		if len(candidates) == 0 {
			return nil, false
		}
		return candidates[0], true
	case []byte:
		return Decode(string(t))
	default:
		return raw, true
	}
}

// DecodeCandidates recovers every independently parseable JSON value from a
// noisy body: a direct parse when possible, otherwise each parseable line,
// otherwise the first balanced [...] region. Callers pick the first
// structurally valid candidate for their shape.
func DecodeCandidates(raw string) []any {
	body := StripGuardPrefix(raw)
	if strings.TrimSpace(body) == "" {
		return nil
	}

	var direct any
	if err := json.Unmarshal([]byte(body), &direct); err == nil {
		return []any{direct}
	}

	var out []any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (!strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "{")) {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err == nil {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		return out
	}

	if region := balancedArray(body); region != "" {
		var v any
		if err := json.Unmarshal([]byte(region), &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// balancedArray extracts the first balanced [...] region, ignoring
// brackets inside string literals.
func balancedArray(s string) string {
	start := strings.IndexByte(s, '[')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
