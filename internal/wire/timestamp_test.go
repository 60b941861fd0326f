package wire

import "testing"

func TestToEpochMillisPair(t *testing.T) {
	ms, ok := ToEpochMillis([]any{float64(1700000000), float64(500000000)})
	if !ok {
		t.Fatalf("expected pair to convert")
	}
	if ms != 1700000000500 {
		t.Fatalf("expected 1700000000500, got %d", ms)
	}
}

func TestToEpochMillisPairRejectsImplausibleSeconds(t *testing.T) {
	cases := [][]any{
		{float64(12), float64(0)},           // far before 2000
		{float64(9e12), float64(0)},         // far after 2100
		{float64(1700000000)},               // wrong arity
		{"1700000000", float64(0)},          // non-numeric
		{float64(1700000000), float64(2e9)}, // nanos out of range
		{float64(1700000000), float64(-1)},  // negative nanos
	}
	for i, pair := range cases {
		if _, ok := ToEpochMillis(pair); ok {
			t.Fatalf("case %d: expected rejection of %v", i, pair)
		}
	}
}

func TestToEpochMillisNumbers(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{1714376442000, 1714376442000}, // already millis
		{1714376442, 1714376442000},    // seconds
		{1714376442.25, 1714376442250}, // fractional seconds
	}
	for _, tt := range cases {
		got, ok := ToEpochMillis(tt.in)
		if !ok {
			t.Fatalf("expected %v to convert", tt.in)
		}
		if got != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestToEpochMillisISO(t *testing.T) {
	got, ok := ToEpochMillis("2024-01-15T10:00:00Z")
	if !ok {
		t.Fatalf("expected ISO string to convert")
	}
	if got != 1705312800000 {
		t.Fatalf("expected 1705312800000, got %d", got)
	}
}

func TestToEpochMillisRejectsJunk(t *testing.T) {
	for _, v := range []any{nil, "", "soon", true, map[string]any{}, float64(3)} {
		if _, ok := ToEpochMillis(v); ok {
			t.Fatalf("expected rejection of %#v", v)
		}
	}
}

func TestToEpochMillisOrFallback(t *testing.T) {
	if got := ToEpochMillisOr(nil, 42); got != 42 {
		t.Fatalf("expected fallback 42, got %d", got)
	}
	if got := ToEpochMillisOr("2024-01-15T10:00:00Z", 42); got != 1705312800000 {
		t.Fatalf("expected parsed value, got %d", got)
	}
}
