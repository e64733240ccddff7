package authz

import (
	"sort"
	"strings"
	"time"
)

// Permission represents an atomic named capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Role bundles permissions under a stable name.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Group collects principals and may itself hold roles.
type Group struct {
	ID        int64
	Name      string
	Kind      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PermissionSet is the effective permission set of a principal.
// Keys are normalized permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission names, normalizing each.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = NormalizePermission(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the given permission.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[NormalizePermission(name)]
	return ok
}

// Missing returns the first required permission absent from the set.
// The bool result is true when every required permission is present.
func (s PermissionSet) Missing(required []string) (string, bool) {
	for _, name := range required {
		if _, ok := s[name]; !ok {
			return name, false
		}
	}
	return "", true
}

// Names returns the sorted permission names in the set.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizePermission lowercases and trims a permission name.
func NormalizePermission(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
