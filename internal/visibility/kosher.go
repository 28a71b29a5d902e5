package visibility

import (
	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/unit"
)

// grantFor returns what u is kosher for, computing it on first use.
//
// A unit is kosher for a bundle when it has a direct impl-pinned dependency
// on the bundle's owner. Legacy units also inherit the grants of their
// direct dependencies. Any dependency on the host unit grants the host
// packages.
func (r *Resolver) grantFor(u *unit.Unit) grant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grantLocked(u, map[string]bool{})
}

func (r *Resolver) grantLocked(u *unit.Unit, visiting map[string]bool) grant {
	if g, ok := r.kosher[u.ID()]; ok {
		return g
	}
	visiting[u.ID()] = true
	defer delete(visiting, u.ID())

	g := grant{bundles: map[int]bool{}}
	complete := true
	for _, d := range dependency.Of(dependency.KindUnit, u.Dependencies()) {
		if r.cfg.HostUnit != "" && d.Name == r.cfg.HostUnit {
			g.host = true
		}
		if d.ImplPinned() {
			for i, b := range r.cfg.Bundles {
				if b.Owner == d.Name {
					g.bundles[i] = true
				}
			}
		}

		if !u.Legacy() {
			continue
		}
		t := r.graph.Get(d.Name)
		if t == nil {
			continue
		}
		if visiting[t.ID()] {
			// Cycle: t's grant is still being computed.
			complete = false
			continue
		}
		tg := r.grantLocked(t, visiting)
		for i := range tg.bundles {
			g.bundles[i] = true
		}
		g.host = g.host || tg.host
	}

	g.packages = newPrefixSet()
	if g.host {
		g.packages = g.packages.with(r.cfg.HostPackages)
	}
	for i := range g.bundles {
		g.packages = g.packages.with(r.cfg.Bundles[i].Packages)
	}

	if complete {
		r.kosher[u.ID()] = g
	}
	return g
}

// Kosher reports whether u may see the core bundle at path.
func (r *Resolver) Kosher(u *unit.Unit, path string) bool {
	i, ok := r.bundleAt(path)
	return ok && r.grantFor(u).bundles[i]
}
