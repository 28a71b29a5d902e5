package visibility

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/unit"
)

// Unbounded lifts the traversal depth limit.
const Unbounded = -1

// jrePrefix is always delegated to the boot loader.
const jrePrefix = "java/"

// Graph is the read-only view of the unit manager the resolver needs.
// *unit.Graph implements it.
type Graph interface {
	Get(id string) *unit.Unit
	Fragments(host string) []*unit.Unit
}

// Bundle is a core-internal startup path entry. Only units kosher for its
// owner see it, and then only the listed packages.
type Bundle struct {
	Path     string
	Owner    string
	Packages []manifest.PackageExport
}

// Config describes the host environment.
type Config struct {
	// BootRoots are the platform resource roots, visible to everyone.
	BootRoots []string
	// StartupPath is the host's own resource path.
	StartupPath []string
	// Bundles are the startup path entries reserved for kosher units.
	Bundles []Bundle
	// HostUnit is the id of the unit hosting the resolver. Any dependency
	// on it grants HostPackages. HostPackages and the bundle packages make
	// up the host-internal set.
	HostUnit     string
	HostPackages []manifest.PackageExport
	// BootDelegation, when non-empty, restricts what the host loader serves
	// besides the JRE namespace.
	BootDelegation []manifest.PackageExport
}

// Entry is one element of an effective classpath. A restricted entry only
// exposes Packages.
type Entry struct {
	Path       string
	Packages   []manifest.PackageExport
	Restricted bool
}

// Allows reports whether the entry exposes resource package pkg.
func (e Entry) Allows(pkg string) bool {
	if !e.Restricted {
		return true
	}
	for _, p := range e.Packages {
		if p.Matches(pkg) {
			return true
		}
	}
	return false
}

// grant is what a unit is kosher for.
type grant struct {
	bundles  map[int]bool
	host     bool
	packages prefixSet
}

// Resolver answers classpath and delegation queries.
type Resolver struct {
	graph    Graph
	cfg      Config
	internal prefixSet
	boot     prefixSet
	logger   *slog.Logger

	mu     sync.Mutex
	hidden map[string]prefixSet
	kosher map[string]grant
}

// New returns a resolver over g.
func New(g Graph, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	internal := newPrefixSet(cfg.HostPackages)
	for _, b := range cfg.Bundles {
		internal = internal.with(b.Packages)
	}
	return &Resolver{
		graph:    g,
		cfg:      cfg,
		internal: internal,
		boot:     newPrefixSet(cfg.BootDelegation),
		logger:   logger,
		hidden:   make(map[string]prefixSet),
		kosher:   make(map[string]grant),
	}
}

// EffectiveClasspath returns u's classpath: boot roots, then the startup
// path minus bundles u is not kosher for, then the roots of the units u
// depends on (each before its dependents), then u's own roots. Disabled
// units get nothing.
func (r *Resolver) EffectiveClasspath(u *unit.Unit) []Entry {
	if u == nil || !u.Enabled() {
		return nil
	}

	var out []Entry
	for _, root := range r.cfg.BootRoots {
		out = append(out, Entry{Path: root})
	}

	g := r.grantFor(u)
	for _, p := range r.cfg.StartupPath {
		i, ok := r.bundleAt(p)
		switch {
		case !ok:
			out = append(out, Entry{Path: p})
		case g.bundles[i]:
			out = append(out, Entry{Path: p, Packages: r.cfg.Bundles[i].Packages, Restricted: true})
		}
	}

	depth := 1
	if u.Legacy() {
		depth = Unbounded
	}
	return append(out, r.dependencyPath(u, depth)...)
}

func (r *Resolver) bundleAt(path string) (int, bool) {
	for i, b := range r.cfg.Bundles {
		if b.Path == path {
			return i, true
		}
	}
	return 0, false
}

// frame is one unit on the traversal stack.
type frame struct {
	unit  *unit.Unit
	edge  dependency.Dependency
	depth int
	deps  []dependency.Dependency
	next  int
}

// dependencyPath walks u's unit dependencies depth-first and emits each
// unit's roots after those of its own dependencies, ending with u's roots.
// maxDepth bounds how far below u the walk goes; Unbounded removes the
// limit. Each unit is visited once.
func (r *Resolver) dependencyPath(u *unit.Unit, maxDepth int) []Entry {
	var out []Entry
	visited := map[string]bool{u.ID(): true}
	stack := []*frame{{unit: u, deps: dependency.Of(dependency.KindUnit, u.Dependencies())}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		descend := maxDepth == Unbounded || top.depth < maxDepth
		if descend && top.next < len(top.deps) {
			d := top.deps[top.next]
			top.next++

			t := r.graph.Get(d.Name)
			if t == nil || visited[t.ID()] {
				continue
			}
			if !d.ImplPinned() && !t.IsFriend(top.unit.ID()) {
				r.logger.Debug("classpath excludes non-friend dependency",
					"unit", top.unit.ID(), "target", t.ID())
				continue
			}
			visited[t.ID()] = true
			stack = append(stack, &frame{
				unit:  t,
				edge:  d,
				depth: top.depth + 1,
				deps:  dependency.Of(dependency.KindUnit, t.Dependencies()),
			})
			continue
		}

		stack = stack[:len(stack)-1]
		out = append(out, rootEntries(top)...)
	}
	return out
}

func rootEntries(f *frame) []Entry {
	roots := f.unit.Roots()
	out := make([]Entry, 0, len(roots))
	exports, all := f.unit.Exports()
	open := f.depth == 0 || all || f.edge.ImplPinned()
	for _, root := range roots {
		if open {
			out = append(out, Entry{Path: root})
			continue
		}
		out = append(out, Entry{Path: root, Packages: exports, Restricted: true})
	}
	return out
}

// MayDelegate reports whether u may have resource loaded by parent, or by
// the host loader when parent is nil. It refuses host-internal packages u is
// not kosher for, packages hidden by an enabled unit governing the request,
// and, when a boot delegation list is configured, host loader requests
// outside it and the JRE namespace.
func (r *Resolver) MayDelegate(u, parent *unit.Unit, resource string) bool {
	resource = strings.TrimPrefix(resource, "/")
	pkg := manifest.ResourcePackage(resource)

	if r.internal.matches(pkg) && !r.grantFor(u).packages.matches(pkg) {
		r.refuse(u, parent, resource, "host internal")
		return false
	}

	if parent != nil {
		if parent.Enabled() && r.hiddenBy(parent).matches(pkg) {
			r.refuse(u, parent, resource, "hidden by "+parent.ID())
			return false
		}
		return true
	}

	for _, gov := range r.governing(u) {
		if r.hiddenBy(gov).matches(pkg) {
			r.refuse(u, parent, resource, "hidden by "+gov.ID())
			return false
		}
	}

	if !r.boot.empty() && !strings.HasPrefix(resource, jrePrefix) && !r.boot.matches(pkg) {
		r.refuse(u, parent, resource, "outside boot delegation")
		return false
	}
	return true
}

// governing returns u and its enabled direct unit dependencies.
func (r *Resolver) governing(u *unit.Unit) []*unit.Unit {
	out := []*unit.Unit{u}
	for _, d := range dependency.Of(dependency.KindUnit, u.Dependencies()) {
		if t := r.graph.Get(d.Name); t != nil && t.Enabled() {
			out = append(out, t)
		}
	}
	return out
}

func (r *Resolver) refuse(u, parent *unit.Unit, resource, reason string) {
	via := "host"
	if parent != nil {
		via = parent.ID()
	}
	r.logger.Debug("delegation refused", "unit", u.ID(), "resource", resource, "via", via, "reason", reason)
}
