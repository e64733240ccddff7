package authz

import (
	"sort"
	"strings"
)

// Registry maps operation identifiers to their required permissions. It is
// populated during startup, validated against the catalog, and read-only at
// dispatch time. An operation registered with no permissions means
// "authenticated only".
type Registry struct {
	ops map[string][]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string][]string)}
}

// Register records the permissions required by an operation. Registering the
// same operation twice replaces the earlier requirement.
func (r *Registry) Register(operation string, perms ...string) {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return
	}
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = NormalizePermission(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	required := make([]string, 0, len(unique))
	for p := range unique {
		required = append(required, p)
	}
	sort.Strings(required)
	r.ops[operation] = required
}

// Required returns the permissions an operation demands, nil for unknown
// operations.
func (r *Registry) Required(operation string) []string {
	return r.ops[operation]
}

// Lookup returns the requirement for an operation and whether the operation
// is registered at all. Gates use it to reject typo'd operation identifiers
// at mount time instead of silently dropping the requirement.
func (r *Registry) Lookup(operation string) ([]string, bool) {
	required, ok := r.ops[operation]
	return required, ok
}

// Operations returns all registered operation identifiers sorted.
func (r *Registry) Operations() []string {
	ops := make([]string, 0, len(r.ops))
	for op := range r.ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Validate checks every registered requirement against the catalog. The first
// unknown permission is returned as a ConfigurationError; the caller must
// treat it as fatal and refuse to serve.
func (r *Registry) Validate(catalog *Catalog) error {
	for _, op := range r.Operations() {
		for _, perm := range r.ops[op] {
			if !catalog.Has(perm) {
				return &ConfigurationError{Operation: op, Permission: perm}
			}
		}
	}
	return nil
}
