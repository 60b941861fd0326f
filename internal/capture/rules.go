package capture

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/you/chatvault/internal/core"
)

// Rules gates capture per platform. The zero value allows everything; a
// rules file lists platforms explicitly disabled or enabled:
//
//	{"platforms": {"gemini": false}}
//
// Platforms the file does not mention stay enabled.
type Rules struct {
	mu       sync.RWMutex
	disabled map[core.Platform]bool
	path     string
}

type rulesFile struct {
	Platforms map[string]bool `json:"platforms"`
}

func NewRules() *Rules {
	return &Rules{disabled: make(map[core.Platform]bool)}
}

// LoadRules reads a rules file. A missing file is not an error; captures
// stay fully enabled until the file appears.
func LoadRules(path string) (*Rules, error) {
	r := NewRules()
	r.path = path
	if path == "" {
		return r, nil
	}
	if err := r.Reload(); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

// Reload re-reads the rules file, replacing the active rule set atomically.
func (r *Rules) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errors.Wrap(err, "read rules")
	}
	var f rulesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "parse rules")
	}

	disabled := make(map[core.Platform]bool, len(f.Platforms))
	for name, enabled := range f.Platforms {
		p := core.Platform(strings.ToLower(strings.TrimSpace(name)))
		if p == "" {
			continue
		}
		if !enabled {
			disabled[p] = true
		}
	}

	r.mu.Lock()
	r.disabled = disabled
	r.mu.Unlock()
	return nil
}

// Enabled reports whether captures for a platform should be processed.
func (r *Rules) Enabled(p core.Platform) bool {
	if r == nil {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[p]
}

// SetEnabled overrides a platform at runtime. A later file reload replaces
// runtime overrides.
func (r *Rules) SetEnabled(p core.Platform, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		delete(r.disabled, p)
	} else {
		r.disabled[p] = true
	}
}

// Snapshot returns the currently disabled platforms.
func (r *Rules) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.disabled))
	for p := range r.disabled {
		out[string(p)] = false
	}
	return out
}
