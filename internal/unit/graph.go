package unit

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/transform"
)

// Refiner rewrites a unit's declared dependencies before they become
// canonical. *transform.Engine implements it.
type Refiner interface {
	Refine(unitID string, deps []dependency.Dependency) transform.Report
}

// Installer is told about units entering and leaving the enabled state.
// Prepare is called for every unit of an enable batch before any of them is
// marked enabled; aboutToEnable is the whole batch.
type Installer interface {
	Prepare(u *Unit, aboutToEnable []*Unit)
	Invalidate(id string)
}

// EventKind identifies a property change.
type EventKind int

const (
	// EventEnabled fires when a unit is enabled or disabled.
	EventEnabled EventKind = iota
	// EventReloadable fires when a unit's reloadable flag changes.
	EventReloadable
	// EventStartLevel fires when a unit's start level changes.
	EventStartLevel
	// EventUnitsChanged fires when units are created or deleted. Unit is the
	// created or deleted unit.
	EventUnitsChanged
)

func (k EventKind) String() string {
	switch k {
	case EventEnabled:
		return "enabled"
	case EventReloadable:
		return "reloadable"
	case EventStartLevel:
		return "start-level"
	case EventUnitsChanged:
		return "units"
	}
	return "unknown"
}

// Event describes one property change.
type Event struct {
	Kind EventKind
	Unit *Unit
}

// Graph is the in-memory unit manager.
type Graph struct {
	mu     sync.RWMutex
	units  map[string]*Unit
	queued []Event

	refiner   Refiner
	installer Installer
	logger    *slog.Logger

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// NewGraph returns an empty graph. refiner may be nil.
func NewGraph(refiner Refiner, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Graph{
		units:     make(map[string]*Unit),
		refiner:   refiner,
		logger:    logger,
		listeners: make(map[int]func(Event)),
	}
}

// SetInstaller registers the installer notified on enable and disable.
// Call it before the graph is shared.
func (g *Graph) SetInstaller(i Installer) { g.installer = i }

// ReadAccess runs fn holding the read lock.
func (g *Graph) ReadAccess(fn func()) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn()
}

// WriteAccess runs fn holding the write lock, then delivers the events fn
// produced. fn's error is returned unchanged.
func (g *Graph) WriteAccess(fn func() error) error {
	g.mu.Lock()
	err := func() error {
		defer func() {
			if r := recover(); r != nil {
				g.queued = nil
				g.mu.Unlock()
				panic(r)
			}
		}()
		return fn()
	}()
	events := g.queued
	g.queued = nil
	g.mu.Unlock()

	g.deliver(events)
	return err
}

// Subscribe registers fn for property-change events and returns a function
// that removes it.
func (g *Graph) Subscribe(fn func(Event)) (cancel func()) {
	g.lmu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.lmu.Unlock()

	return func() {
		g.lmu.Lock()
		delete(g.listeners, id)
		g.lmu.Unlock()
	}
}

func (g *Graph) deliver(events []Event) {
	if len(events) == 0 {
		return
	}
	g.lmu.Lock()
	ids := make([]int, 0, len(g.listeners))
	for id := range g.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = g.listeners[id]
	}
	g.lmu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (g *Graph) emit(kind EventKind, u *Unit) {
	g.queued = append(g.queued, Event{Kind: kind, Unit: u})
}

// Create adds a unit built from desc. origin is the path the descriptor was
// read from. The declared dependencies pass through the refiner first.
func (g *Graph) Create(desc *manifest.Descriptor, origin string, autoload, eager bool) (*Unit, error) {
	return g.create(desc, origin, autoload, eager, false)
}

// CreateFixed adds a host unit. Fixed units start enabled and can be neither
// disabled nor deleted.
func (g *Graph) CreateFixed(desc *manifest.Descriptor, origin string, autoload, eager bool) (*Unit, error) {
	return g.create(desc, origin, autoload, eager, true)
}

func (g *Graph) create(desc *manifest.Descriptor, origin string, autoload, eager, fixed bool) (*Unit, error) {
	if _, ok := g.units[desc.ID]; ok {
		return nil, fmt.Errorf("creating %s: %w", desc.ID, ErrExists)
	}
	u, err := newUnit(desc, origin, g.refiner)
	if err != nil {
		return nil, err
	}
	u.autoload = autoload
	u.eager = eager
	u.fixed = fixed

	for _, m := range u.refinement.Messages {
		g.logger.Info("dependencies refined", "unit", u.id, "change", m)
	}

	if fixed {
		if g.installer != nil {
			g.installer.Prepare(u, []*Unit{u})
		}
		u.enabled = true
	}
	g.units[u.id] = u
	g.emit(EventUnitsChanged, u)
	return u, nil
}

// Get returns the unit with the given id, or nil.
func (g *Graph) Get(id string) *Unit {
	return g.units[id]
}

// Units returns every unit ordered by id.
func (g *Graph) Units() []*Unit {
	out := make([]*Unit, 0, len(g.units))
	for _, u := range g.units {
		out = append(out, u)
	}
	sortByID(out)
	return out
}

// Fragments returns the units attached to host as fragments, ordered by id.
func (g *Graph) Fragments(host string) []*Unit {
	var out []*Unit
	for _, u := range g.units {
		if u.fragmentHost == host {
			out = append(out, u)
		}
	}
	sortByID(out)
	return out
}

// Providers returns the units providing token name, ordered by id.
func (g *Graph) Providers(name string) []*Unit {
	var out []*Unit
	for _, u := range g.units {
		if u.ProvidesToken(name) {
			out = append(out, u)
		}
	}
	sortByID(out)
	return out
}

// Delete removes a disabled, non-fixed unit from the graph.
func (g *Graph) Delete(u *Unit) error {
	if err := g.check(u); err != nil {
		return err
	}
	if u.fixed {
		return fmt.Errorf("deleting %s: %w", u.id, ErrFixed)
	}
	if u.enabled {
		return fmt.Errorf("deleting %s: unit is enabled", u.id)
	}
	delete(g.units, u.id)
	u.valid = false
	if g.installer != nil {
		g.installer.Invalidate(u.id)
	}
	g.emit(EventUnitsChanged, u)
	return nil
}

// SetReloadable changes u's reloadable flag.
func (g *Graph) SetReloadable(u *Unit, reloadable bool) error {
	if err := g.check(u); err != nil {
		return err
	}
	if u.reloadable == reloadable {
		return nil
	}
	u.reloadable = reloadable
	g.emit(EventReloadable, u)
	return nil
}

// SetStartLevel changes u's start level. 0 clears it.
func (g *Graph) SetStartLevel(u *Unit, level int) error {
	if err := g.check(u); err != nil {
		return err
	}
	if level < 0 {
		return fmt.Errorf("start level %d of %s is negative", level, u.id)
	}
	if u.startLevel == level {
		return nil
	}
	u.startLevel = level
	g.emit(EventStartLevel, u)
	return nil
}

func (g *Graph) check(u *Unit) error {
	if u == nil || !u.valid || g.units[u.id] != u {
		return ErrInvalid
	}
	return nil
}

func sortByID(units []*Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].id < units[j].id })
}
