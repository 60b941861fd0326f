package store

import (
	"net/url"
	"testing"

	"github.com/you/chatvault/internal/core"
)

func TestParseFiltersDefaults(t *testing.T) {
	f, err := ParseFilters(url.Values{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != defaultLimit || f.Order != OrderDesc || f.Since != 0 || len(f.Platforms) != 0 {
		t.Fatalf("unexpected defaults %+v", f)
	}
}

func TestParseFiltersPlatforms(t *testing.T) {
	f, err := ParseFilters(url.Values{"platform": {"claude,ChatGPT"}, "order": {"asc"}, "limit": {"5"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Platforms) != 2 || f.Platforms[0] != "claude" || f.Platforms[1] != "chatgpt" {
		t.Fatalf("unexpected platforms %+v", f.Platforms)
	}
	if f.Order != OrderAsc || f.Limit != 5 {
		t.Fatalf("unexpected filters %+v", f)
	}

	if _, err := ParseFilters(url.Values{"platform": {"myspace"}}); err == nil {
		t.Fatalf("expected error for unknown platform")
	}

	all, err := ParseFilters(url.Values{"platform": {"claude,all"}})
	if err != nil {
		t.Fatalf("parse all: %v", err)
	}
	if len(all.Platforms) != 0 {
		t.Fatalf("expected all to clear platform filter, got %+v", all.Platforms)
	}

	bard, err := ParseFilters(url.Values{"platform": {"bard"}})
	if err != nil {
		t.Fatalf("parse alias: %v", err)
	}
	if len(bard.Platforms) != 1 || bard.Platforms[0] != "gemini" {
		t.Fatalf("alias not normalized: %+v", bard.Platforms)
	}
}

func TestParseFiltersSince(t *testing.T) {
	f, err := ParseFilters(url.Values{"since": {"2024-01-15T10:00:00Z"}})
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	if f.Since != 1705312800000 {
		t.Fatalf("unexpected since %d", f.Since)
	}

	f, err = ParseFilters(url.Values{"since": {"1705312800"}})
	if err != nil {
		t.Fatalf("parse epoch seconds: %v", err)
	}
	if f.Since != 1705312800000 {
		t.Fatalf("seconds not scaled: %d", f.Since)
	}

	f, err = ParseFilters(url.Values{"since": {"1705312800000"}})
	if err != nil {
		t.Fatalf("parse epoch millis: %v", err)
	}
	if f.Since != 1705312800000 {
		t.Fatalf("millis rescaled: %d", f.Since)
	}

	if _, err := ParseFilters(url.Values{"since": {"yesterday"}}); err == nil {
		t.Fatalf("expected error for unparseable since")
	}
	if _, err := ParseFilters(url.Values{"limit": {"-3"}}); err == nil {
		t.Fatalf("expected error for negative limit")
	}
}

func TestFiltersMatches(t *testing.T) {
	conv := core.Conversation{Platform: core.PlatformClaude, UpdatedAt: 200, IsFavorite: false}
	if !(Filters{}).Matches(conv) {
		t.Fatalf("empty filters should match")
	}
	if !(Filters{Platforms: []string{"claude"}, Since: 100}).Matches(conv) {
		t.Fatalf("expected match")
	}
	if (Filters{Platforms: []string{"gemini"}}).Matches(conv) {
		t.Fatalf("platform mismatch should not match")
	}
	if (Filters{Since: 300}).Matches(conv) {
		t.Fatalf("stale conversation should not match")
	}
	if (Filters{FavoritesOnly: true}).Matches(conv) {
		t.Fatalf("non-favorite should not match")
	}
}
