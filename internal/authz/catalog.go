package authz

import "sort"

// Catalog is the static set of permission names the service understands.
// It is built once at startup and never mutated afterwards.
type Catalog struct {
	perms map[string]string
}

// NewCatalog constructs a catalog from name→description pairs.
func NewCatalog(perms map[string]string) *Catalog {
	c := &Catalog{perms: make(map[string]string, len(perms))}
	for name, desc := range perms {
		name = NormalizePermission(name)
		if name == "" {
			continue
		}
		c.perms[name] = desc
	}
	return c
}

// Has reports whether the catalog knows the given permission.
func (c *Catalog) Has(name string) bool {
	_, ok := c.perms[NormalizePermission(name)]
	return ok
}

// Description returns the description recorded for a permission.
func (c *Catalog) Description(name string) string {
	return c.perms[NormalizePermission(name)]
}

// Names returns all catalog permission names sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.perms))
	for name := range c.perms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
