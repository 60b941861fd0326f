package store

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/chatvault/internal/core"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Order is the chronological order for conversation listings.
type Order string

const (
	// OrderDesc returns conversations most recently updated first.
	OrderDesc Order = "desc"
	// OrderAsc returns conversations least recently updated first.
	OrderAsc Order = "asc"
)

// Filters captures the parsed query parameters for conversation lookups.
type Filters struct {
	Platforms     []string
	Since         int64 // epoch milliseconds, 0 means unbounded
	Limit         int
	Order         Order
	FavoritesOnly bool
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderDesc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	if raw := values.Get("since"); raw != "" {
		ms, err := parseSince(raw)
		if err != nil {
			return Filters{}, err
		}
		f.Since = ms
	}

	if raw := values.Get("favorite"); raw != "" {
		switch strings.ToLower(raw) {
		case "1", "true", "yes":
			f.FavoritesOnly = true
		case "0", "false", "no":
		default:
			return Filters{}, errors.New("favorite must be a boolean")
		}
	}

	for _, raw := range values["platform"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			canonical, ok := normalizePlatform(part)
			if !ok {
				return Filters{}, errors.New("invalid platform filter")
			}
			if canonical == "" {
				// "all" clears any narrower selection.
				f.Platforms = nil
				continue
			}
			if !containsString(f.Platforms, canonical) {
				f.Platforms = append(f.Platforms, canonical)
			}
		}
	}

	return f, nil
}

func normalizePlatform(p string) (string, bool) {
	switch strings.ToLower(p) {
	case string(core.PlatformClaude):
		return string(core.PlatformClaude), true
	case string(core.PlatformChatGPT), "openai":
		return string(core.PlatformChatGPT), true
	case string(core.PlatformGemini), "bard":
		return string(core.PlatformGemini), true
	case "all", "*":
		return "", true
	default:
		return "", false
	}
}

// parseSince accepts RFC 3339 timestamps, epoch seconds or milliseconds, and
// relative durations like "24h".
func parseSince(raw string) (int64, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1_000_000_000_000 {
			return n, nil
		}
		return n * 1000, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UnixMilli(), nil
	}
	return 0, errors.New("invalid since parameter")
}

// Matches reports whether a conversation satisfies the filters, used when
// applying filters to in-memory rows instead of SQL.
func (f Filters) Matches(conv core.Conversation) bool {
	if len(f.Platforms) > 0 && !containsString(f.Platforms, string(conv.Platform)) {
		return false
	}
	if f.Since > 0 && conv.UpdatedAt < f.Since {
		return false
	}
	if f.FavoritesOnly && !conv.IsFavorite {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
