// Package policy decides which roles may send which message types.
package policy

import (
	"slices"
	"sync/atomic"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
)

// table is never mutated after it is published.
type table map[string]map[domain.Role]struct{}

// Engine is a fail-closed rule table. Reads are lock-free; each update
// builds a new table and swaps it in.
type Engine struct {
	rules atomic.Pointer[table]
}

// NewEngine returns an Engine enforcing initial.
func NewEngine(initial domain.RuleSet) *Engine {
	e := &Engine{}
	t := build(nil, initial, true)
	e.rules.Store(&t)
	return e
}

func build(base table, rs domain.RuleSet, replace bool) table {
	next := make(table, len(base)+len(rs))
	if !replace {
		for mt, roles := range base {
			next[mt] = roles
		}
	}
	for mt, roles := range rs {
		if len(roles) == 0 {
			delete(next, mt)
			continue
		}
		set := make(map[domain.Role]struct{}, len(roles))
		for _, r := range roles {
			set[r] = struct{}{}
		}
		next[mt] = set
	}
	return next
}

// IsAllowed is false for message types without a rule.
func (e *Engine) IsAllowed(messageType string, role domain.Role) bool {
	roles, ok := (*e.rules.Load())[messageType]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// Rules returns a copy of the current table with roles in privilege order.
func (e *Engine) Rules() domain.RuleSet {
	t := *e.rules.Load()
	out := make(domain.RuleSet, len(t))
	for mt, set := range t {
		roles := make([]domain.Role, 0, len(set))
		for _, r := range domain.Roles {
			if _, ok := set[r]; ok {
				roles = append(roles, r)
			}
		}
		out[mt] = roles
	}
	return out
}

// Validate reports whether every entry names a message type and only known
// roles.
func Validate(rs domain.RuleSet) bool {
	for mt, roles := range rs {
		if mt == "" {
			return false
		}
		if slices.ContainsFunc(roles, func(r domain.Role) bool { return !r.Valid() }) {
			return false
		}
	}
	return true
}

// UpdateRules merges partial into the table, or replaces the table when
// replace is set. A type mapped to no roles is removed. Returns false and
// leaves the table untouched when partial is invalid. The caller is
// responsible for checking that the requester is privileged.
func (e *Engine) UpdateRules(partial domain.RuleSet, replace bool) bool {
	if !Validate(partial) {
		return false
	}
	for {
		cur := e.rules.Load()
		next := build(*cur, partial, replace)
		if e.rules.CompareAndSwap(cur, &next) {
			return true
		}
	}
}
