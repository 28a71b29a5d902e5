package dependency

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// NewSet returns a dependency set holding deps.
func NewSet(deps ...Dependency) mapset.Set[Dependency] {
	return mapset.NewThreadUnsafeSet(deps...)
}

// Sorted returns the members of set in a stable order: by kind, then by
// their manifest rendering.
func Sorted(set mapset.Set[Dependency]) []Dependency {
	out := set.ToSlice()
	SortSlice(out)
	return out
}

// SortSlice orders deps in place by kind, then by their manifest rendering.
func SortSlice(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Kind != deps[j].Kind {
			return deps[i].Kind < deps[j].Kind
		}
		return deps[i].String() < deps[j].String()
	})
}

// Of returns the members of deps with the given kind, preserving order.
func Of(kind Kind, deps []Dependency) []Dependency {
	var out []Dependency
	for _, d := range deps {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
