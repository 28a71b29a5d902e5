package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/unit"
)

// DefaultDebounce is the delay between the last noticed change and the
// reconciliation pass.
const DefaultDebounce = 500 * time.Millisecond

// Manager is the unit manager the reconciler drives. *unit.Graph
// implements it.
type Manager interface {
	ReadAccess(fn func())
	WriteAccess(fn func() error) error
	Subscribe(fn func(unit.Event)) (cancel func())

	Create(desc *manifest.Descriptor, origin string, autoload, eager bool) (*unit.Unit, error)
	Get(id string) *unit.Unit
	Units() []*unit.Unit
	Delete(u *unit.Unit) error

	SimulateEnable(set []*unit.Unit) ([]*unit.Unit, error)
	Enable(set []*unit.Unit) error
	SimulateDisable(set []*unit.Unit) ([]*unit.Unit, error)
	Disable(set []*unit.Unit) error
	Problems(u *unit.Unit) []string

	SetReloadable(u *unit.Unit, reloadable bool) error
	SetStartLevel(u *unit.Unit, level int) error
}

// Config configures a Reconciler.
type Config struct {
	// StatusDir holds one record file per unit.
	StatusDir string
	// CacheDir holds the binary cache. Empty disables it.
	CacheDir string
	// InstallRoots are searched, in order, for record jar paths.
	InstallRoots []string
	// Locator overrides the install root lookup.
	Locator Locator
	// FirstWins picks the first located jar instead of the newest.
	FirstWins bool
	// Debounce delays passes after noticed changes. Zero means DefaultDebounce.
	Debounce time.Duration
	// Registerer receives the reconciler metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// discovery tells how a tracked unit first became known.
type discovery int

const (
	fromDisk discovery = iota
	fromLiveGraph
)

func (d discovery) String() string {
	if d == fromLiveGraph {
		return "live"
	}
	return "disk"
}

// status is the reconciler's view of one tracked unit.
type status struct {
	id         string
	unit       *unit.Unit
	jar        string
	origin     string
	originMod  time.Time
	discovered discovery

	// onDisk is what the record file holds as far as we know, nil if absent.
	onDisk *Record
	// dirty is set when the file changed on disk and the change has not
	// been reconciled yet.
	dirty bool
	// pendingInstall is set for units whose record asks for enablement
	// until the first enable attempt.
	pendingInstall bool
}

// Reconciler synchronizes status records and the live unit graph.
type Reconciler struct {
	mgr     Manager
	store   *Store
	cache   *Cache
	loc     Locator
	roots   RootLocator
	cfg     Config
	logger  *slog.Logger
	metrics *metrics

	// passMu serializes passes so one is never re-entered.
	passMu sync.Mutex

	// mu guards everything below. When both are needed the graph lock is
	// taken first.
	mu        sync.Mutex
	statuses  map[string]*status
	byPath    map[string]*status
	fresh     map[string]bool
	problems  map[string][]string
	triggered bool
	closed    bool
	passTimer *time.Timer
	saveTimer *time.Timer
	watcher   *watcher
	cancel    func()
}

// New returns a reconciler over mgr.
func New(mgr Manager, cfg Config) (*Reconciler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	store, err := NewStore(cfg.StatusDir, cfg.Logger)
	if err != nil {
		return nil, err
	}

	r := &Reconciler{
		mgr:      mgr,
		store:    store,
		loc:      cfg.Locator,
		roots:    RootLocator{Roots: cfg.InstallRoots},
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  newMetrics(cfg.Registerer),
		statuses: make(map[string]*status),
		byPath:   make(map[string]*status),
		fresh:    make(map[string]bool),
		problems: make(map[string][]string),
	}
	if r.loc == nil {
		r.loc = r.roots
	}
	if cfg.CacheDir != "" {
		c, err := OpenCache(cfg.CacheDir, cfg.Logger)
		if err != nil {
			// The cache is an optimization only.
			r.logger.Warn("status cache unavailable", "dir", cfg.CacheDir, "error", err)
		} else {
			r.cache = c
		}
	}
	return r, nil
}

// Store returns the record store.
func (r *Reconciler) Store() *Store { return r.store }

// loadedRecord is a record with its located jar, or the reason it cannot
// be used.
type loadedRecord struct {
	path      string
	rec       *Record
	origin    string
	originMod time.Time
	desc      *manifest.Descriptor
	err       error
}

// ReadInitial reads every record, from the binary cache when it matches the
// folder, and creates the units they name. Records that cannot be used are
// dropped; a dropped record claiming enablement because its jar is missing
// is deleted.
func (r *Reconciler) ReadInitial(ctx context.Context) error {
	loaded := r.fromCache()
	if loaded == nil {
		var err error
		if loaded, err = r.readAll(ctx); err != nil {
			return err
		}
	}

	err := r.mgr.WriteAccess(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, l := range loaded {
			r.adoptLocked(l)
		}
		return nil
	})
	r.scheduleSave()
	return err
}

func (r *Reconciler) readAll(ctx context.Context) ([]loadedRecord, error) {
	paths, err := r.store.List()
	if err != nil {
		return nil, err
	}

	out := make([]loadedRecord, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := r.store.Read(p)
			if err != nil {
				out[i] = loadedRecord{path: p, err: err}
				return nil
			}
			out[i] = r.locateRecord(p, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading status records: %w", err)
	}
	return out, nil
}

func (r *Reconciler) fromCache() []loadedRecord {
	if r.cache == nil {
		return nil
	}
	fp, err := Fingerprint(r.store)
	if err != nil {
		return nil
	}
	entries, hit, err := r.cache.Load(fp)
	if err != nil {
		r.logger.Warn("ignoring status cache", "error", err)
		return nil
	}
	if !hit {
		r.logger.Debug("status cache is stale")
		return nil
	}

	out := make([]loadedRecord, 0, len(entries))
	for _, e := range entries {
		rec := e.Record
		path := r.store.Path(rec.Name)
		info, err := os.Stat(e.Origin)
		if err != nil || !info.ModTime().Equal(e.OriginMod) || e.Descriptor == nil {
			out = append(out, r.locateRecord(path, &rec))
			continue
		}
		out = append(out, loadedRecord{
			path:      path,
			rec:       &rec,
			origin:    e.Origin,
			originMod: e.OriginMod,
			desc:      e.Descriptor,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	r.logger.Debug("status records loaded from cache", "count", len(out))
	return out
}

func (r *Reconciler) locateRecord(path string, rec *Record) loadedRecord {
	l := loadedRecord{path: path, rec: rec}
	if id, _ := UnitID(filepath.Base(path)); id != rec.Name {
		l.err = &RecordError{Path: path, Err: fmt.Errorf("file name belongs to unit %s, not %s", id, rec.Name)}
		return l
	}
	origin, desc, err := locate(r.loc, rec, r.cfg.FirstWins)
	if err != nil {
		l.err = &RecordError{Path: path, Err: err}
		return l
	}
	l.origin, l.desc = origin, desc
	if info, err := os.Stat(origin); err == nil {
		l.originMod = info.ModTime()
	}
	return l
}

// adoptLocked creates the unit for a loaded record and tracks it. It
// returns nil when the record is dropped.
func (r *Reconciler) adoptLocked(l loadedRecord) *status {
	if l.err != nil {
		r.dropLocked(l.path, l.rec, l.err)
		return nil
	}
	if r.statuses[l.rec.Name] != nil {
		r.dropLocked(l.path, l.rec, errors.New("unit already tracked"))
		return nil
	}

	u, err := r.mgr.Create(l.desc, l.origin, l.rec.Autoload, l.rec.Eager)
	if err != nil {
		r.dropLocked(l.path, l.rec, &RecordError{Path: l.path, Err: err})
		return nil
	}
	if err := r.mgr.SetReloadable(u, l.rec.Reloadable); err != nil {
		r.logger.Warn("cannot apply reloadable flag", "unit", u.ID(), "error", err)
	}
	if l.rec.StartLevel > 0 {
		if err := r.mgr.SetStartLevel(u, l.rec.StartLevel); err != nil {
			r.logger.Warn("cannot apply start level", "unit", u.ID(), "error", err)
		}
	}

	s := &status{
		id:             u.ID(),
		unit:           u,
		jar:            l.rec.Jar,
		origin:         l.origin,
		originMod:      l.originMod,
		discovered:     fromDisk,
		onDisk:         l.rec,
		pendingInstall: l.rec.WantsEnabled(),
	}
	r.trackLocked(s)
	return s
}

// dropLocked logs an unusable record. A record claiming enablement whose jar
// is missing is deleted so it is not retried.
func (r *Reconciler) dropLocked(path string, rec *Record, err error) {
	r.metrics.dropped.Inc()
	r.logger.Warn("dropping status record", "path", path, "error", err)
	if rec == nil || !rec.WantsEnabled() || !errors.Is(err, ErrMissingJar) {
		return
	}
	if err := r.store.Delete(rec.Name); err != nil {
		r.logger.Warn("cannot delete status record", "path", path, "error", err)
		return
	}
	r.metrics.writes.WithLabelValues("delete").Inc()
}

func (r *Reconciler) trackLocked(s *status) {
	r.statuses[s.id] = s
	r.byPath[r.store.Path(s.id)] = s
}

func (r *Reconciler) untrackLocked(s *status) {
	delete(r.statuses, s.id)
	delete(r.byPath, r.store.Path(s.id))
	delete(r.problems, s.id)
}

// Trigger enables the units whose records ask for it plus boot, then starts
// following live and external changes. It runs once.
func (r *Reconciler) Trigger(boot []*unit.Unit) error {
	r.mu.Lock()
	if r.triggered {
		r.mu.Unlock()
		return errors.New("reconciler already triggered")
	}
	r.triggered = true
	r.mu.Unlock()

	cancel := r.mgr.Subscribe(r.onEvent)
	err := r.mgr.WriteAccess(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()

		var candidates []*unit.Unit
		for _, s := range r.sortedLocked() {
			if s.pendingInstall {
				candidates = append(candidates, s.unit)
				s.pendingInstall = false
			}
		}
		r.installLocked(append(candidates, boot...))

		for _, u := range r.mgr.Units() {
			if !u.Fixed() && r.statuses[u.ID()] == nil {
				r.discoverLocked(u)
			}
		}
		r.flushLocked(r.sortedLocked())
		return nil
	})

	w, werr := startWatcher(r.store.Dir(), r.notice, r.logger)
	if werr != nil {
		r.logger.Warn("external status record changes will not be noticed", "error", werr)
	}

	r.mu.Lock()
	r.cancel = cancel
	r.watcher = w
	r.mu.Unlock()

	r.scheduleSave()
	return err
}

// installLocked enables units through the simulate-then-enable protocol.
// Units that will not enable by request are dropped first. When the manager
// still rejects a unit, it and every candidate that cannot be enabled are
// recorded as problems and dropped, and the rest is retried.
func (r *Reconciler) installLocked(units []*unit.Unit) {
	candidates := mapset.NewThreadUnsafeSet[*unit.Unit]()
	for _, u := range units {
		if u.Valid() && !u.Enabled() && !u.Autoload() && !u.Eager() {
			candidates.Add(u)
		}
	}

	for candidates.Cardinality() > 0 {
		list := sortedUnits(candidates)
		sim, err := r.mgr.SimulateEnable(list)
		if err != nil {
			r.logger.Error("simulating enable failed", "error", err)
			return
		}
		will := mapset.NewThreadUnsafeSet(sim...)
		for _, u := range list {
			if !will.Contains(u) {
				r.problems[u.ID()] = r.mgr.Problems(u)
				candidates.Remove(u)
			}
		}
		if candidates.Cardinality() == 0 {
			break
		}

		list = sortedUnits(candidates)
		err = r.mgr.Enable(list)
		if err == nil {
			for _, u := range list {
				delete(r.problems, u.ID())
			}
			r.logger.Info("units enabled", "requested", len(list), "total", len(sim))
			return
		}

		var invalid *unit.InvalidError
		if !errors.As(err, &invalid) {
			r.logger.Error("enabling units failed", "error", err)
			return
		}
		r.problems[invalid.Unit.ID()] = invalid.Problems
		candidates.Remove(invalid.Unit)
		for _, u := range sortedUnits(candidates) {
			if p := r.mgr.Problems(u); len(p) > 0 {
				r.problems[u.ID()] = p
				candidates.Remove(u)
			}
		}
		r.logger.Warn("unit cannot be enabled, retrying without it",
			"unit", invalid.Unit.ID(), "remaining", candidates.Cardinality())
	}

	for _, u := range units {
		if p, ok := r.problems[u.ID()]; ok {
			r.logger.Warn("unit not enabled", "unit", u.ID(), "problems", p)
		}
	}
}

func (r *Reconciler) discoverLocked(u *unit.Unit) *status {
	s := &status{
		id:         u.ID(),
		unit:       u,
		jar:        r.roots.Relative(u.Origin()),
		origin:     u.Origin(),
		discovered: fromLiveGraph,
	}
	if info, err := os.Stat(u.Origin()); err == nil {
		s.originMod = info.ModTime()
	}
	r.trackLocked(s)
	return s
}

func (r *Reconciler) liveRecord(s *status) *Record {
	u := s.unit
	rec := &Record{
		Name:       u.ID(),
		Jar:        s.jar,
		Autoload:   u.Autoload(),
		Eager:      u.Eager(),
		Reloadable: u.Reloadable(),
		StartLevel: u.StartLevel(),
	}
	if !rec.Derived() {
		enabled := u.Enabled()
		rec.Enabled = &enabled
	}
	return rec
}

// syncLocked writes s's live properties when they differ from its file. It
// refuses with *RaceError while the file has unreconciled changes.
func (r *Reconciler) syncLocked(s *status) error {
	// A unit whose enablement failed is written back as disabled; the
	// reasons stay in Problems until it is enabled.
	if s.unit.Enabled() {
		delete(r.problems, s.id)
	}
	live := r.liveRecord(s)
	if live.Equal(s.onDisk) {
		return nil
	}
	if s.dirty {
		r.metrics.races.Inc()
		return &RaceError{ID: s.id, Path: r.store.Path(s.id)}
	}
	if err := r.store.Write(live); err != nil {
		return err
	}
	r.metrics.writes.WithLabelValues("write").Inc()
	s.onDisk = live
	return nil
}

func (r *Reconciler) flushLocked(statuses []*status) {
	for _, s := range statuses {
		if err := r.syncLocked(s); err != nil {
			r.logger.Warn("status record not written", "unit", s.id, "error", err)
		}
	}
}

// onEvent writes records for live property changes.
func (r *Reconciler) onEvent(ev unit.Event) {
	r.mgr.ReadAccess(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || ev.Unit == nil || ev.Unit.Fixed() {
			return
		}
		u := ev.Unit

		if !u.Valid() {
			if s := r.statuses[u.ID()]; s != nil && s.unit == u && r.mgr.Get(u.ID()) == nil {
				r.forgetLocked(s)
			}
			return
		}

		s := r.statuses[u.ID()]
		switch {
		case s == nil:
			s = r.discoverLocked(u)
			r.logger.Debug("tracking unit", "unit", u.ID(), "discovered", s.discovered)
		case s.unit != u:
			s.unit = u
		}
		if err := r.syncLocked(s); err != nil {
			r.logger.Warn("status record not written", "unit", s.id, "error", err)
		}
	})
	r.scheduleSave()
}

// forgetLocked stops tracking a unit that left the graph and deletes its
// record. A record with unreconciled changes is kept and treated as new.
func (r *Reconciler) forgetLocked(s *status) {
	r.untrackLocked(s)
	path := r.store.Path(s.id)
	if s.dirty {
		r.metrics.races.Inc()
		r.fresh[path] = true
		r.logger.Warn("unit removed but its record changed on disk, keeping record", "unit", s.id)
		return
	}
	if err := r.store.Delete(s.id); err != nil {
		r.logger.Warn("cannot delete status record", "unit", s.id, "error", err)
		return
	}
	r.metrics.writes.WithLabelValues("delete").Inc()
}

// notice handles one file system notification.
func (r *Reconciler) notice(path string) {
	if !r.store.IsRecordPath(path) {
		return
	}
	if r.store.Own(path) {
		r.logger.Debug("ignoring own status record change", "path", path)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if s := r.byPath[path]; s != nil {
		s.dirty = true
	} else {
		r.fresh[path] = true
	}
	r.schedulePassLocked()
}

func (r *Reconciler) schedulePassLocked() {
	if r.passTimer == nil {
		r.passTimer = time.AfterFunc(r.cfg.Debounce, func() {
			if err := r.Reconcile(); err != nil {
				r.logger.Error("reconciliation pass failed", "error", err)
			}
		})
		return
	}
	r.passTimer.Reset(r.cfg.Debounce)
}

// Reconcile runs a reconciliation pass now, applying every noticed external
// change to the graph under its write lock.
func (r *Reconciler) Reconcile() error {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil
	}

	start := time.Now()
	err := r.mgr.WriteAccess(r.pass)
	r.metrics.passes.Inc()
	r.metrics.passDuration.Observe(time.Since(start).Seconds())
	r.scheduleSave()
	return err
}

type change struct {
	s   *status
	rec *Record
}

func (r *Reconciler) pass() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-read every dirty record.
	var changed []change
	var vanished []*status
	for _, s := range r.sortedLocked() {
		if !s.dirty {
			continue
		}
		rec, err := r.store.Read(r.store.Path(s.id))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			vanished = append(vanished, s)
		case err != nil:
			r.metrics.dropped.Inc()
			r.logger.Warn("ignoring unreadable status record", "unit", s.id, "error", err)
			s.dirty = false
		case rec.Name != s.id:
			r.logger.Warn("ignoring status record naming another unit", "unit", s.id, "name", rec.Name)
			s.dirty = false
		default:
			changed = append(changed, change{s: s, rec: rec})
		}
	}

	// Records without a status yet get their units constructed.
	var created []change
	for _, path := range sortedKeys(r.fresh) {
		delete(r.fresh, path)
		rec, err := r.store.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			r.dropLocked(path, nil, err)
			continue
		}
		if s := r.statuses[rec.Name]; s != nil {
			changed = append(changed, change{s: s, rec: rec})
			continue
		}
		if u := r.mgr.Get(rec.Name); u != nil && u.Fixed() {
			r.logger.Warn("ignoring status record of a fixed unit", "unit", rec.Name)
			continue
		}
		if s := r.adoptLocked(r.locateRecord(path, rec)); s != nil {
			created = append(created, change{s: s, rec: rec})
		}
	}

	// Properties that change live.
	for _, c := range changed {
		u := c.s.unit
		if c.rec.Reloadable != u.Reloadable() {
			if err := r.mgr.SetReloadable(u, c.rec.Reloadable); err != nil {
				r.logger.Warn("cannot apply reloadable flag", "unit", c.s.id, "error", err)
			}
		}
		if c.rec.StartLevel != u.StartLevel() {
			if err := r.mgr.SetStartLevel(u, c.rec.StartLevel); err != nil {
				r.logger.Warn("cannot apply start level", "unit", c.s.id, "error", err)
			}
		}
		if c.rec.Jar != c.s.jar {
			r.logger.Warn("jar path cannot change while running", "unit", c.s.id, "record", c.rec.Jar, "live", c.s.jar)
		}
		if c.rec.Autoload != u.Autoload() || c.rec.Eager != u.Eager() {
			r.logger.Warn("autoload and eager flags cannot change while running", "unit", c.s.id)
		}
	}

	// Enablement.
	processed := append(changed, created...)
	var enable, disable []*unit.Unit
	for _, c := range processed {
		u := c.s.unit
		c.s.pendingInstall = false
		if u.Autoload() || u.Eager() {
			continue
		}
		if !c.rec.WantsEnabled() {
			delete(r.problems, c.s.id)
		}
		switch want := c.rec.WantsEnabled(); {
		case want && !u.Enabled():
			enable = append(enable, u)
		case !want && u.Enabled():
			disable = append(disable, u)
		}
	}
	if len(disable) > 0 {
		list, err := r.mgr.SimulateDisable(disable)
		if err == nil {
			err = r.mgr.Disable(list)
		}
		if err != nil {
			r.logger.Warn("cannot disable units", "error", err)
		}
	}
	r.installLocked(enable)

	// Vanished records.
	for _, s := range vanished {
		r.removeLocked(s)
	}

	for _, c := range processed {
		c.s.dirty = false
		c.s.onDisk = c.rec
	}
	for _, c := range processed {
		if r.statuses[c.s.id] == c.s {
			if err := r.syncLocked(c.s); err != nil {
				r.logger.Warn("status record not written", "unit", c.s.id, "error", err)
			}
		}
	}

	r.logger.Debug("reconciliation pass done", "changed", len(changed), "created", len(created),
		"vanished", len(vanished), "enabled", len(enable), "disabled", len(disable))
	return nil
}

// removeLocked deletes the unit of a vanished record, disabling it and its
// dependents first. An autoload or eager unit that other units still need
// is kept.
func (r *Reconciler) removeLocked(s *status) {
	keep := func(reason string, err error) {
		r.logger.Warn("keeping unit whose record vanished", "unit", s.id, "reason", reason, "error", err)
		s.dirty = false
		s.onDisk = nil
	}

	u := s.unit
	if u.Valid() && u.Enabled() {
		list, err := r.mgr.SimulateDisable([]*unit.Unit{u})
		if err != nil {
			keep("cannot simulate disable", err)
			return
		}
		if u.Autoload() || u.Eager() {
			for _, o := range list {
				if o != u && !o.Autoload() && !o.Eager() {
					keep("still needed by "+o.ID(), nil)
					return
				}
			}
		}
		if err := r.mgr.Disable(list); err != nil {
			keep("cannot disable", err)
			return
		}
	}
	if u.Valid() {
		if err := r.mgr.Delete(u); err != nil {
			keep("cannot delete", err)
			return
		}
	}
	r.untrackLocked(s)
	r.logger.Info("unit removed with its status record", "unit", s.id)
}

// Problems returns, per unit id, why units requested for enablement could
// not be enabled.
func (r *Reconciler) Problems() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.problems))
	for id, p := range r.problems {
		out[id] = append([]string(nil), p...)
	}
	return out
}

// Records returns the last known on-disk record of every tracked unit.
func (r *Reconciler) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, s := range r.sortedLocked() {
		if s.onDisk != nil {
			out = append(out, *s.onDisk)
		}
	}
	return out
}

func (r *Reconciler) scheduleSave() {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.saveTimer == nil {
		r.saveTimer = time.AfterFunc(r.cfg.Debounce, func() {
			if err := r.SaveCache(); err != nil {
				r.logger.Warn("status cache not saved", "error", err)
			}
		})
		return
	}
	r.saveTimer.Reset(r.cfg.Debounce)
}

// SaveCache writes the binary cache now. It does nothing while external
// changes are waiting for a pass; the pass schedules another save.
func (r *Reconciler) SaveCache() error {
	if r.cache == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fresh) > 0 {
		return nil
	}
	var entries []CacheEntry
	for _, s := range r.sortedLocked() {
		if s.dirty {
			return nil
		}
		if s.onDisk == nil {
			continue
		}
		entries = append(entries, CacheEntry{
			Record:     *s.onDisk,
			Origin:     s.origin,
			OriginMod:  s.originMod,
			Descriptor: s.unit.Descriptor(),
		})
	}
	fp, err := Fingerprint(r.store)
	if err != nil {
		return err
	}
	return r.cache.Save(fp, entries)
}

// Close stops following changes, waits for a running pass and saves the
// cache.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.passTimer != nil {
		r.passTimer.Stop()
	}
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	w, cancel := r.watcher, r.cancel
	r.mu.Unlock()

	if w != nil {
		w.Close()
	}
	r.passMu.Lock()
	r.passMu.Unlock()
	if cancel != nil {
		cancel()
	}

	if r.cache == nil {
		return nil
	}
	err := r.SaveCache()
	if cerr := r.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Reconciler) sortedLocked() []*status {
	out := make([]*status, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func sortedUnits(set mapset.Set[*unit.Unit]) []*unit.Unit {
	out := set.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
