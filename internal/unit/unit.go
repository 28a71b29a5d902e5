package unit

import (
	"fmt"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/transform"
)

// Unit is one extension unit known to a Graph. Its fields are only read or
// changed while the owning graph's lock is held.
type Unit struct {
	id           string
	major        int
	spec         string
	impl         string
	deps         []dependency.Dependency
	provides     []string
	exports      []manifest.PackageExport
	exportAll    bool
	friends      []string
	hidden       []manifest.PackageExport
	fragmentHost string
	roots        []string
	origin       string
	legacy       bool

	autoload   bool
	eager      bool
	fixed      bool
	enabled    bool
	reloadable bool
	valid      bool
	startLevel int

	descriptor *manifest.Descriptor
	refinement transform.Report
}

func newUnit(desc *manifest.Descriptor, origin string, refiner Refiner) (*Unit, error) {
	deps, err := desc.Deps()
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", desc.ID, err)
	}
	exports, err := desc.Exports()
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", desc.ID, err)
	}
	hidden, err := desc.Hidden()
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", desc.ID, err)
	}

	u := &Unit{
		id:           desc.ID,
		major:        desc.MajorRelease(),
		spec:         desc.Spec,
		impl:         desc.Impl,
		deps:         deps,
		provides:     append([]string(nil), desc.Provides...),
		exports:      exports,
		exportAll:    desc.ExportAll,
		friends:      append([]string(nil), desc.Friends...),
		hidden:       hidden,
		fragmentHost: desc.FragmentHost,
		origin:       origin,
		legacy:       desc.Legacy(),
		valid:        true,
		descriptor:   desc,
	}
	if origin != "" {
		u.roots = desc.Roots(origin)
	}
	if desc.StartLevel != nil {
		u.startLevel = *desc.StartLevel
	}

	if refiner != nil {
		u.refinement = refiner.Refine(u.id, deps)
		if !u.refinement.Empty() {
			u.deps = u.refinement.Apply(deps)
		}
	}
	return u, nil
}

// ID returns the unit's code name base.
func (u *Unit) ID() string { return u.id }

// Major returns the major release version, or dependency.NoMajor.
func (u *Unit) Major() int { return u.major }

// Spec returns the specification version, possibly empty.
func (u *Unit) Spec() string { return u.spec }

// Impl returns the implementation version, possibly empty.
func (u *Unit) Impl() string { return u.impl }

// Dependencies returns the canonical dependency set, after refinement.
func (u *Unit) Dependencies() []dependency.Dependency {
	return append([]dependency.Dependency(nil), u.deps...)
}

// Provides returns the tokens the unit provides.
func (u *Unit) Provides() []string { return u.provides }

// Exports returns the declared public packages. all is true when the unit
// declares none and therefore exports everything.
func (u *Unit) Exports() (exports []manifest.PackageExport, all bool) {
	return u.exports, u.exportAll
}

// Friends returns the ids allowed to depend on the unit. Empty means anyone.
func (u *Unit) Friends() []string { return u.friends }

// IsFriend reports whether id may depend on the unit.
func (u *Unit) IsFriend(id string) bool {
	if len(u.friends) == 0 {
		return true
	}
	for _, f := range u.friends {
		if f == id {
			return true
		}
	}
	return false
}

// Hidden returns the packages the unit itself declares hidden.
func (u *Unit) Hidden() []manifest.PackageExport { return u.hidden }

// FragmentHost returns the id of the unit this fragment attaches to.
func (u *Unit) FragmentHost() string { return u.fragmentHost }

// Roots returns the unit's resource roots.
func (u *Unit) Roots() []string { return u.roots }

// Origin returns the path the unit was created from.
func (u *Unit) Origin() string { return u.origin }

// Legacy reports whether the unit uses the legacy module format.
func (u *Unit) Legacy() bool { return u.legacy }

// Autoload reports whether the unit is enabled only on demand.
func (u *Unit) Autoload() bool { return u.autoload }

// Eager reports whether the unit enables itself once satisfiable.
func (u *Unit) Eager() bool { return u.eager }

// Fixed reports whether the unit belongs to the host and has no record.
func (u *Unit) Fixed() bool { return u.fixed }

// Enabled reports whether the unit is enabled.
func (u *Unit) Enabled() bool { return u.enabled }

// Reloadable reports whether the unit may be reloaded in place.
func (u *Unit) Reloadable() bool { return u.reloadable }

// Valid reports whether the unit is still part of its graph.
func (u *Unit) Valid() bool { return u.valid }

// StartLevel returns the start level, 0 when unset.
func (u *Unit) StartLevel() int { return u.startLevel }

// Descriptor returns the descriptor the unit was created from.
func (u *Unit) Descriptor() *manifest.Descriptor { return u.descriptor }

// Refinement returns the changes the transformation engine made to the
// declared dependencies.
func (u *Unit) Refinement() transform.Report { return u.refinement }

// DependsOn reports whether u has a unit dependency on id.
func (u *Unit) DependsOn(id string) bool {
	for _, d := range u.deps {
		if d.Kind == dependency.KindUnit && d.Name == id {
			return true
		}
	}
	return false
}

// ProvidesToken reports whether u provides token name.
func (u *Unit) ProvidesToken(name string) bool {
	for _, p := range u.provides {
		if p == name {
			return true
		}
	}
	return false
}

// String renders the unit as id plus versions, e.g. "org.foo/1 [1.2 20240101]".
func (u *Unit) String() string {
	s := u.id
	if u.major != dependency.NoMajor {
		s += fmt.Sprintf("/%d", u.major)
	}
	if u.spec != "" || u.impl != "" {
		s += fmt.Sprintf(" [%s %s]", u.spec, u.impl)
	}
	return s
}
