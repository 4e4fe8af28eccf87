package script

import (
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/matcher"
)

// Registry holds the current rule set. Readers run concurrently on the
// hot path; LoadAll installs a new fully-formed immutable snapshot, so a
// reader never observes a half-populated registry.
//
// Rules are kept sorted lexically by name. Application order is part of
// the contract: overlapping header keys and body splices must be
// reproducible across calls and across reloads.
type Registry struct {
	logger   zerolog.Logger
	snapshot atomic.Value // []InjectionScript, sorted by name
}

func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{logger: logger}
	r.snapshot.Store([]InjectionScript{})
	return r
}

// LoadAll replaces the entire rule set. Duplicate names keep the later
// entry. Loading the same input again yields the same contents.
func (r *Registry) LoadAll(rules []InjectionScript) {
	byName := make(map[string]InjectionScript, len(rules))
	for _, rule := range rules {
		byName[rule.Name] = rule.Clone()
	}

	snapshot := make([]InjectionScript, 0, len(byName))
	for _, rule := range byName {
		matcher.CheckPatterns(r.logger, rule.Name, rule.TargetDomains)
		snapshot = append(snapshot, rule)
	}

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Name < snapshot[j].Name
	})

	r.snapshot.Store(snapshot)
	r.logger.Info().Int("count", len(snapshot)).Msg("loaded injection scripts")
}

// Names lists the registered rule names in application order.
// Diagnostic surface only, not part of the hot path.
func (r *Registry) Names() []string {
	rules := r.rules()
	names := make([]string, 0, len(rules))
	for i := range rules {
		names = append(names, rules[i].Name)
	}
	return names
}

// Len reports the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules())
}

// ForDomain returns every enabled rule targeting the domain, in
// application order. The returned slice is owned by the caller.
func (r *Registry) ForDomain(domain string) []InjectionScript {
	var out []InjectionScript
	for _, rule := range r.rules() {
		if !rule.Enabled {
			continue
		}
		if matcher.MatchesPatterns(domain, rule.TargetDomains) {
			out = append(out, rule)
		}
	}
	return out
}

func (r *Registry) rules() []InjectionScript {
	return r.snapshot.Load().([]InjectionScript)
}
