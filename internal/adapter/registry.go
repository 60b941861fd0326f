package adapter

import (
	"net/url"
	"strings"

	"github.com/you/chatvault/internal/core"
)

// Registry routes captured URLs to the owning adapter.
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds a registry over the given adapters. Order matters
// only for overlapping hosts, which the known platforms do not have.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Adapters returns the registered adapters.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// ForURL returns the adapter owning the URL, or nil.
func (r *Registry) ForURL(rawURL string) Adapter {
	for _, a := range r.adapters {
		if a.ShouldCapture(rawURL) {
			return a
		}
	}
	return nil
}

// ForPlatform returns the adapter for a platform, or nil.
func (r *Registry) ForPlatform(p core.Platform) Adapter {
	for _, a := range r.adapters {
		if a.Platform() == p {
			return a
		}
	}
	return nil
}

// PlatformFromHost maps a bare hostname to its platform.
func (r *Registry) PlatformFromHost(host string) (core.Platform, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "", false
	}
	for _, a := range r.adapters {
		if a.ShouldCapture("https://" + host + "/") {
			return a.Platform(), true
		}
	}
	return "", false
}

// IsSupported reports whether any adapter claims the URL.
func (r *Registry) IsSupported(rawURL string) bool {
	return r.ForURL(rawURL) != nil
}

// Host extracts the lowercase hostname from a captured URL, tolerating
// bare host strings.
func Host(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return strings.ToLower(rawURL)
}
