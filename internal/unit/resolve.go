package unit

import (
	"fmt"

	"github.com/agentx-labs/unitcore/internal/dependency"
)

// solver answers satisfiability questions for a single operation. Results
// are memoized for its lifetime only, since the graph may change between
// operations.
type solver struct {
	g        *Graph
	memo     map[string][]string
	visiting map[string]bool
}

func (g *Graph) newSolver() *solver {
	return &solver{g: g, memo: make(map[string][]string), visiting: make(map[string]bool)}
}

// problems lists why u cannot be enabled. Enabled units have none. A
// dependency cycle is assumed satisfiable.
func (s *solver) problems(u *Unit) []string {
	if u.enabled {
		return nil
	}
	if p, ok := s.memo[u.id]; ok {
		return p
	}
	if s.visiting[u.id] {
		return nil
	}
	s.visiting[u.id] = true
	defer delete(s.visiting, u.id)

	var out []string
	for _, d := range u.deps {
		switch d.Kind {
		case dependency.KindUnit:
			t := s.g.units[d.Name]
			switch {
			case t == nil:
				out = append(out, "missing unit "+d.String())
			case !dependency.Satisfies(d, t.major, t.spec, t.impl):
				out = append(out, fmt.Sprintf("%s is not satisfied by %s", d, t))
			case !d.ImplPinned() && !t.IsFriend(u.id):
				out = append(out, fmt.Sprintf("%s is not a friend of %s", u.id, t.id))
			case len(s.problems(t)) > 0:
				out = append(out, fmt.Sprintf("%s cannot be enabled", d))
			}
		case dependency.KindToken:
			if d.Relation == dependency.Recommends {
				continue
			}
			if !s.tokenSatisfiable(u, d.Name) {
				out = append(out, "no unit provides "+d.Name)
			}
		}
	}
	s.memo[u.id] = out
	return out
}

func (s *solver) tokenSatisfiable(u *Unit, name string) bool {
	for _, p := range s.g.Providers(name) {
		if p == u {
			continue
		}
		if p.enabled || len(s.problems(p)) == 0 {
			return true
		}
	}
	return false
}

// closure adds u and everything enabling u pulls in to will.
func (s *solver) closure(will map[string]*Unit, u *Unit) {
	work := []*Unit{u}
	will[u.id] = u
	add := func(t *Unit) {
		if t.enabled || will[t.id] != nil {
			return
		}
		will[t.id] = t
		work = append(work, t)
	}

	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		for _, d := range cur.deps {
			switch d.Kind {
			case dependency.KindUnit:
				if t := s.g.units[d.Name]; t != nil {
					add(t)
				}
			case dependency.KindToken:
				for _, p := range s.pickProviders(cur, d, will) {
					add(p)
				}
			}
		}
	}
}

// pickProviders selects the disabled providers enabling cur pulls in for
// token dependency d: none when one is already enabled or selected, else
// every satisfiable autoload provider, else for a hard dependency the first
// satisfiable provider by id.
func (s *solver) pickProviders(cur *Unit, d dependency.Dependency, will map[string]*Unit) []*Unit {
	var autoloads, others []*Unit
	for _, p := range s.g.Providers(d.Name) {
		if p == cur {
			continue
		}
		if p.enabled || will[p.id] != nil {
			return nil
		}
		if len(s.problems(p)) > 0 {
			continue
		}
		if p.autoload {
			autoloads = append(autoloads, p)
		} else {
			others = append(others, p)
		}
	}
	if len(autoloads) > 0 {
		return autoloads
	}
	if d.Relation != dependency.Recommends && len(others) > 0 {
		return others[:1]
	}
	return nil
}

// order returns the members of set with dependencies before dependents.
// Ties are broken by id.
func (s *solver) order(set map[string]*Unit) []*Unit {
	units := make([]*Unit, 0, len(set))
	for _, u := range set {
		units = append(units, u)
	}
	sortByID(units)

	seen := make(map[string]bool, len(set))
	out := make([]*Unit, 0, len(set))
	var visit func(u *Unit)
	visit = func(u *Unit) {
		if seen[u.id] {
			return
		}
		seen[u.id] = true
		for _, d := range u.deps {
			switch {
			case d.Kind == dependency.KindUnit:
				if t := set[d.Name]; t != nil {
					visit(t)
				}
			case d.Kind == dependency.KindToken && d.Relation == dependency.Requires:
				for _, p := range s.g.Providers(d.Name) {
					if set[p.id] != nil && p != u {
						visit(p)
					}
				}
			}
		}
		out = append(out, u)
	}
	for _, u := range units {
		visit(u)
	}
	return out
}

// Problems lists the unmet dependencies preventing u from being enabled.
func (g *Graph) Problems(u *Unit) []string {
	return g.newSolver().problems(u)
}

// SimulateEnable returns the units that enabling set would actually
// enable, dependencies first. Already enabled and unsatisfiable units are
// omitted. Autoload providers are pulled in as needed, and eager units join
// once everything they need is enabled or enabling.
func (g *Graph) SimulateEnable(set []*Unit) ([]*Unit, error) {
	for _, u := range set {
		if err := g.check(u); err != nil {
			return nil, fmt.Errorf("simulating enable: %w", err)
		}
	}
	if len(set) == 0 {
		return nil, nil
	}

	s := g.newSolver()
	requested := append([]*Unit(nil), set...)
	sortByID(requested)

	will := make(map[string]*Unit)
	for _, u := range requested {
		if u.enabled || len(s.problems(u)) > 0 {
			continue
		}
		s.closure(will, u)
	}

	for changed := true; changed; {
		changed = false
		for _, e := range g.Units() {
			if !e.eager || e.enabled || will[e.id] != nil || len(s.problems(e)) > 0 {
				continue
			}
			trial := make(map[string]*Unit, len(will)+1)
			for id, u := range will {
				trial[id] = u
			}
			s.closure(trial, e)
			if implicitOnly(trial, will, e) {
				will = trial
				changed = true
			}
		}
	}
	return s.order(will), nil
}

// implicitOnly reports whether every unit trial adds to will, besides e,
// is one that enables implicitly.
func implicitOnly(trial, will map[string]*Unit, e *Unit) bool {
	for id, u := range trial {
		if will[id] != nil || u == e {
			continue
		}
		if !u.autoload && !u.eager {
			return false
		}
	}
	return true
}

// Enable enables set together with whatever SimulateEnable says it needs.
// It returns an *InvalidError for the first requested unit that cannot be
// enabled, in which case nothing changes.
func (g *Graph) Enable(set []*Unit) error {
	list, err := g.SimulateEnable(set)
	if err != nil {
		return err
	}
	in := make(map[string]bool, len(list))
	for _, u := range list {
		in[u.id] = true
	}
	for _, u := range set {
		if !u.enabled && !in[u.id] {
			return &InvalidError{Unit: u, Problems: g.Problems(u)}
		}
	}

	if g.installer != nil {
		for _, u := range list {
			g.installer.Prepare(u, list)
		}
	}
	for _, u := range list {
		u.enabled = true
		g.emit(EventEnabled, u)
		g.logger.Debug("unit enabled", "unit", u.id)
	}
	return nil
}

// SimulateDisable returns the units that disabling set would disable,
// dependents first: set itself, every enabled unit that would be left
// depending on a disabled one, and autoload units used only by those.
func (g *Graph) SimulateDisable(set []*Unit) ([]*Unit, error) {
	off := make(map[string]*Unit)
	for _, u := range set {
		if err := g.check(u); err != nil {
			return nil, fmt.Errorf("simulating disable: %w", err)
		}
		if u.enabled {
			off[u.id] = u
		}
	}
	if len(off) == 0 {
		return nil, nil
	}

	for changed := true; changed; {
		changed = false
		for _, u := range g.Units() {
			if u.enabled && off[u.id] == nil && g.needsAnyOf(u, off) {
				off[u.id] = u
				changed = true
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, a := range g.Units() {
			if !a.autoload || !a.enabled || off[a.id] != nil {
				continue
			}
			if usedByAny(a, off) && !g.usedOutside(a, off) {
				off[a.id] = a
				changed = true
			}
		}
	}

	ordered := g.newSolver().order(off)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered, nil
}

// needsAnyOf reports whether enabled unit u depends on a member of off,
// either directly or through a hard token only members of off provide.
func (g *Graph) needsAnyOf(u *Unit, off map[string]*Unit) bool {
	for _, d := range u.deps {
		switch d.Kind {
		case dependency.KindUnit:
			if off[d.Name] != nil {
				return true
			}
		case dependency.KindToken:
			if d.Relation == dependency.Recommends {
				continue
			}
			lost, kept := false, false
			for _, p := range g.Providers(d.Name) {
				if !p.enabled {
					continue
				}
				if off[p.id] != nil {
					lost = true
				} else if p != u {
					kept = true
				}
			}
			if lost && !kept {
				return true
			}
		}
	}
	return false
}

func (g *Graph) usedOutside(a *Unit, off map[string]*Unit) bool {
	for _, u := range g.units {
		if u != a && u.enabled && off[u.id] == nil && uses(u, a) {
			return true
		}
	}
	return false
}

func usedByAny(a *Unit, units map[string]*Unit) bool {
	for _, u := range units {
		if uses(u, a) {
			return true
		}
	}
	return false
}

// uses reports whether u depends on a by id or through a token a provides.
func uses(u, a *Unit) bool {
	for _, d := range u.deps {
		switch d.Kind {
		case dependency.KindUnit:
			if d.Name == a.id {
				return true
			}
		case dependency.KindToken:
			if a.ProvidesToken(d.Name) {
				return true
			}
		}
	}
	return false
}

// Disable disables set and the autoload and eager units SimulateDisable
// adds. It refuses sets containing fixed units and sets that would strand
// other enabled units; pass the result of SimulateDisable to disable those
// too.
func (g *Graph) Disable(set []*Unit) error {
	requested := make(map[string]bool, len(set))
	for _, u := range set {
		if u != nil && u.fixed {
			return fmt.Errorf("disabling %s: %w", u.id, ErrFixed)
		}
		if u != nil {
			requested[u.id] = true
		}
	}
	list, err := g.SimulateDisable(set)
	if err != nil {
		return err
	}

	var stranded []*Unit
	for _, u := range list {
		if !requested[u.id] && (u.fixed || (!u.autoload && !u.eager)) {
			stranded = append(stranded, u)
		}
	}
	if len(stranded) > 0 {
		sortByID(stranded)
		return &StrandError{Units: stranded}
	}

	for _, u := range list {
		u.enabled = false
		if g.installer != nil {
			g.installer.Invalidate(u.id)
		}
		g.emit(EventEnabled, u)
		g.logger.Debug("unit disabled", "unit", u.id)
	}
	return nil
}
