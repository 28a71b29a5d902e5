package transform

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/agentx-labs/unitcore/internal/dependency"
	mapset "github.com/deckarep/golang-set/v2"
)

// Engine applies transformation groups to dependency sets.
type Engine struct {
	groups []Group
	logger *slog.Logger
}

// New returns an engine over groups. The slice is copied; groups must not be
// modified afterwards.
func New(groups []Group, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		groups: append([]Group(nil), groups...),
		logger: logger,
	}
}

// Groups returns the number of loaded groups.
func (e *Engine) Groups() int { return len(e.groups) }

// Report describes how Refine changed a dependency set. Messages is empty
// iff Added and Removed are both empty.
type Report struct {
	Added    []dependency.Dependency
	Removed  []dependency.Dependency
	Messages []string
}

// Empty reports whether the refinement changed nothing.
func (r Report) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Apply returns deps with the report's removals dropped and additions
// appended, preserving the original order of surviving entries.
func (r Report) Apply(deps []dependency.Dependency) []dependency.Dependency {
	removed := dependency.NewSet(r.Removed...)
	out := make([]dependency.Dependency, 0, len(deps)+len(r.Added))
	for _, d := range deps {
		if !removed.Contains(d) {
			out = append(out, d)
		}
	}
	return append(out, r.Added...)
}

// Refine computes the changes the rule groups imply for unitID's
// dependencies. It does not modify deps.
func (e *Engine) Refine(unitID string, deps []dependency.Dependency) Report {
	if len(e.groups) == 0 {
		return Report{}
	}

	original := newIndex(deps)
	current := newState(deps)

	var messages []string
	for i, g := range e.groups {
		if g.Excludes(unitID) {
			continue
		}
		before := current.set.Clone()
		for _, r := range g.Rules {
			current.apply(original, r)
		}
		if !before.Equal(current.set) {
			messages = append(messages, g.message(i, before, current.set))
		}
	}

	origSet := dependency.NewSet(deps...)
	report := Report{
		Added:   dependency.Sorted(current.set.Difference(origSet)),
		Removed: dependency.Sorted(origSet.Difference(current.set)),
	}
	if !report.Empty() {
		report.Messages = messages
		e.logger.Debug("refined dependencies", "unit", unitID,
			"added", len(report.Added), "removed", len(report.Removed))
	}
	return report
}

func (g Group) message(i int, before, after mapset.Set[dependency.Dependency]) string {
	label := g.Description
	if label == "" {
		label = fmt.Sprintf("transformation group %d", i+1)
	}
	var parts []string
	if added := dependency.Sorted(after.Difference(before)); len(added) > 0 {
		parts = append(parts, "added "+join(added))
	}
	if removed := dependency.Sorted(before.Difference(after)); len(removed) > 0 {
		parts = append(parts, "removed "+join(removed))
	}
	return label + ": " + strings.Join(parts, "; ")
}

func join(deps []dependency.Dependency) string {
	s := make([]string, len(deps))
	for i, d := range deps {
		s[i] = d.String()
	}
	return strings.Join(s, ", ")
}

// index maps the indexable dependency kinds to entries keyed by target.
// Platform dependencies are never indexed.
type index map[dependency.Kind]map[string]dependency.Dependency

func newIndex(deps []dependency.Dependency) index {
	idx := index{
		dependency.KindUnit:    {},
		dependency.KindToken:   {},
		dependency.KindPackage: {},
	}
	for _, d := range deps {
		if m, ok := idx[d.Kind]; ok {
			m[d.Target()] = d
		}
	}
	return idx
}

func (idx index) lookup(d dependency.Dependency) (dependency.Dependency, bool) {
	m, ok := idx[d.Kind]
	if !ok {
		return dependency.Dependency{}, false
	}
	found, ok := m[d.Target()]
	return found, ok
}

// state is the running dependency set of one refinement.
type state struct {
	set mapset.Set[dependency.Dependency]
	idx index
}

func newState(deps []dependency.Dependency) *state {
	return &state{set: dependency.NewSet(deps...), idx: newIndex(deps)}
}

func (s *state) apply(original index, r Rule) {
	existing, ok := original.lookup(r.Trigger.Pattern)
	if !ok {
		return
	}

	switch r.Trigger.Type {
	case TriggerCancel:
		s.remove(existing)
	case TriggerOlder:
		if !dependency.Older(existing, r.Trigger.Pattern) {
			return
		}
	}

	for _, res := range r.Results {
		s.upsert(res)
	}
}

// remove drops whatever entry the running set holds for d's target.
func (s *state) remove(d dependency.Dependency) {
	cur, ok := s.idx.lookup(d)
	if !ok {
		return
	}
	s.set.Remove(cur)
	delete(s.idx[cur.Kind], cur.Target())
}

func (s *state) upsert(p dependency.Dependency) {
	cur, ok := s.idx.lookup(p)
	switch {
	case !ok:
	case p.Kind == dependency.KindToken:
		return
	case dependency.Older(cur, p):
		s.set.Remove(cur)
	default:
		return
	}
	s.set.Add(p)
	s.idx[p.Kind][p.Target()] = p
}
