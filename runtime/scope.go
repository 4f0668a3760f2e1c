// Package runtime implements Jyro's per-run execution state: the lexical
// scope chain, the execution context handed to host functions, and the
// script-defined lambda value. The scope chain carries per-variable type
// hints so typed `var` declarations stay strict at every assignment site,
// not only at declaration.
package runtime

import (
	"github.com/jyro-lang/jyro/diag"
	"github.com/jyro-lang/jyro/value"
)

// Scope is one frame of the lexical chain: name to value bindings plus the
// declared type hint for each typed variable.
type Scope struct {
	parent *Scope
	vars   map[string]value.Value
	hints  map[string]string
}

// NewScope creates a scope whose lookups fall back to parent (nil for the
// root scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: make(map[string]value.Value)}
}

// Declare binds name in this scope. Redeclaration in the same scope reports
// false; the validator guarantees compiled programs never hit that, so the
// compiler treats it as an internal error.
func (s *Scope) Declare(name, hint string, v value.Value) bool {
	if _, exists := s.vars[name]; exists {
		return false
	}
	s.vars[name] = v
	if hint != "" {
		if s.hints == nil {
			s.hints = make(map[string]string)
		}
		s.hints[name] = hint
	}
	return true
}

// Lookup resolves name through the chain.
func (s *Scope) Lookup(name string) (value.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign stores v into the scope that declared name, coercing to the
// variable's type hint if one was recorded. Reports whether the name was
// found; a coercion failure comes back as an InvalidType runtime error.
func (s *Scope) Assign(name string, v value.Value) (bool, *diag.Fault) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; !ok {
			continue
		}
		if hint, hinted := cur.hints[name]; hinted {
			coerced, err := value.CoerceTo(hint, v)
			if err != nil {
				return true, diag.NewFault(diag.InvalidType, diag.Position{}, hint)
			}
			v = coerced
		}
		cur.vars[name] = v
		return true, nil
	}
	return false, nil
}
