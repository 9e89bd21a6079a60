// Package ports assigns backend ports for one planning pass.
package ports

import "github.com/edvin/devhost/internal/site"

// DefaultBase is the first port handed out.
const DefaultBase = 8000

// Allocation maps a site alias to its backend port. It is rebuilt from
// scratch on every planning pass and never persisted.
type Allocation map[string]int

// Allocate assigns base, base+1, ... to sites in the order given. Discovery
// order is alphabetical, so the same site set always gets the same ports; a
// different set may shift every port after the first difference.
func Allocate(sites []site.Site, base int) Allocation {
	a := make(Allocation, len(sites))
	for i, s := range sites {
		a[s.Alias] = base + i
	}
	return a
}

// Port looks up the port for alias.
func (a Allocation) Port(alias string) (int, bool) {
	p, ok := a[alias]
	return p, ok
}

// Apply returns a copy of sites with Port filled from the allocation. Sites
// absent from it get port 0.
func (a Allocation) Apply(sites []site.Site) []site.Site {
	out := make([]site.Site, len(sites))
	for i, s := range sites {
		s.Port = a[s.Alias]
		out[i] = s
	}
	return out
}
