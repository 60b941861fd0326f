// Package wire holds the shared primitives for turning captured chat
// payloads into canonical records: timestamp coercion, tolerant JSON
// decoding, SSE frame extraction, list-envelope unwrapping, a bounded
// tree walker, and content flattening.
package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// Plausible calendar window for second-resolution timestamps:
// 2000-01-01T00:00:00Z through 2100-01-01T00:00:00Z.
const (
	minPlausibleSec = 946684800
	maxPlausibleSec = 4102444800
)

// ToEpochMillis coerces a captured timestamp value to epoch milliseconds.
// It accepts a [seconds, nanos] pair, a millisecond number (>1e12), a
// second number (>1e9), or an ISO-8601 string. It reports false for
// anything else; callers pick their own fallback, this never guesses.
func ToEpochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case []any:
		return pairToMillis(t)
	case float64:
		return numberToMillis(t)
	case int:
		return numberToMillis(float64(t))
	case int64:
		return numberToMillis(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return numberToMillis(f)
	case string:
		return stringToMillis(t)
	}
	return 0, false
}

// ToEpochMillisOr is ToEpochMillis with an explicit caller-supplied fallback.
func ToEpochMillisOr(v any, fallback int64) int64 {
	if ms, ok := ToEpochMillis(v); ok {
		return ms
	}
	return fallback
}

func pairToMillis(pair []any) (int64, bool) {
	if len(pair) != 2 {
		return 0, false
	}
	sec, ok := asFloat(pair[0])
	if !ok {
		return 0, false
	}
	nanos, ok := asFloat(pair[1])
	if !ok {
		return 0, false
	}
	if sec < minPlausibleSec || sec > maxPlausibleSec {
		return 0, false
	}
	if nanos < 0 || nanos >= 1e9 {
		return 0, false
	}
	return int64(sec)*1000 + int64(nanos)/1e6, true
}

func numberToMillis(v float64) (int64, bool) {
	switch {
	case v > 1e12:
		return int64(v), true
	case v > 1e9:
		// Second resolution, possibly fractional (ChatGPT create_time).
		return int64(v * 1000), true
	}
	return 0, false
}

func stringToMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return numberToMillis(n)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}
