package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentx-labs/unitcore/internal/config"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/reconcile"
	"github.com/agentx-labs/unitcore/internal/transform"
	"github.com/agentx-labs/unitcore/internal/unit"
	"github.com/agentx-labs/unitcore/internal/visibility"
)

// ErrUnknownUnit is returned for ids the graph does not hold.
var ErrUnknownUnit = errors.New("unknown unit")

// Options tune Boot.
type Options struct {
	Logger *slog.Logger
	// Registerer receives the reconciler metrics.
	Registerer prometheus.Registerer
	// Boot lists units to enable besides those the records ask for.
	Boot []string
}

// Host is a booted unit system.
type Host struct {
	Rules      *transform.Engine
	Graph      *unit.Graph
	Resolver   *visibility.Resolver
	Reconciler *reconcile.Reconciler

	logger *slog.Logger
}

// Boot builds the unit system described by s, reads the status folder and
// enables the units it asks for.
func Boot(ctx context.Context, s *config.Settings, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rules := transform.LoadOrEmpty(logger, existing(s.Rules)...)
	logger.Debug("transformation rules loaded", "groups", rules.Groups())

	g := unit.NewGraph(rules, logger)
	vcfg, err := resolverConfig(s)
	if err != nil {
		return nil, err
	}
	res := visibility.New(g, vcfg, logger)
	g.SetInstaller(res)

	if s.HostUnit != "" {
		err := g.WriteAccess(func() error {
			_, err := g.CreateFixed(&manifest.Descriptor{ID: s.HostUnit, ExportAll: true}, "", false, false)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("creating host unit: %w", err)
		}
	}

	rec, err := reconcile.New(g, reconcile.Config{
		StatusDir:    s.StatusDir,
		CacheDir:     s.CacheDir,
		InstallRoots: s.InstallRoots,
		FirstWins:    s.FirstWins,
		Debounce:     s.Debounce,
		Registerer:   opts.Registerer,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	h := &Host{Rules: rules, Graph: g, Resolver: res, Reconciler: rec, logger: logger}

	if err := rec.ReadInitial(ctx); err != nil {
		rec.Close()
		return nil, err
	}
	var boot []*unit.Unit
	g.ReadAccess(func() {
		for _, id := range opts.Boot {
			if u := g.Get(id); u != nil {
				boot = append(boot, u)
			} else {
				logger.Warn("boot unit not installed", "unit", id)
			}
		}
	})
	if err := rec.Trigger(boot); err != nil {
		rec.Close()
		return nil, err
	}
	return h, nil
}

// Close stops the reconciler.
func (h *Host) Close() error {
	return h.Reconciler.Close()
}

func existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func resolverConfig(s *config.Settings) (visibility.Config, error) {
	cfg := visibility.Config{
		BootRoots:   s.BootRoots,
		StartupPath: s.StartupPath,
		HostUnit:    s.HostUnit,
	}
	var err error
	if cfg.BootDelegation, err = ParsePrefixes(s.BootDelegation); err != nil {
		return cfg, fmt.Errorf("%s: %w", config.KeyBootDelegation, err)
	}
	if s.HostPrefix != "" {
		if cfg.HostPackages, err = ParsePrefixes([]string{s.HostPrefix}); err != nil {
			return cfg, fmt.Errorf("%s: %w", config.KeyHostPrefix, err)
		}
	}
	for _, b := range s.CoreBundles {
		pkgs, err := ParsePrefixes(b.Packages)
		if err != nil {
			return cfg, fmt.Errorf("%s %s: %w", config.KeyCoreBundles, b.Path, err)
		}
		cfg.Bundles = append(cfg.Bundles, visibility.Bundle{Path: b.Path, Owner: b.Owner, Packages: pkgs})
	}
	return cfg, nil
}

// ParsePrefixes accepts package patterns ("org.foo.*", "org.foo.**") and
// resource prefixes ("org/foo/"), which match recursively.
func ParsePrefixes(values []string) ([]manifest.PackageExport, error) {
	out := make([]manifest.PackageExport, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			prefix := strings.TrimPrefix(strings.TrimSuffix(v, "/"), "/")
			if prefix == "" || strings.Contains(prefix, "//") {
				return nil, fmt.Errorf("invalid resource prefix %q", v)
			}
			out = append(out, manifest.PackageExport{Prefix: prefix + "/", Recursive: true})
			continue
		}
		p, err := manifest.ParsePackagePattern(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UnitStatus summarizes one unit for display.
type UnitStatus struct {
	ID         string
	Version    string
	Enabled    bool
	Autoload   bool
	Eager      bool
	Fixed      bool
	Reloadable bool
	StartLevel int
	Origin     string
	Problems   []string
}

// Units returns the status of every unit, ordered by id.
func (h *Host) Units() []UnitStatus {
	failed := h.Reconciler.Problems()
	var out []UnitStatus
	h.Graph.ReadAccess(func() {
		for _, u := range h.Graph.Units() {
			st := UnitStatus{
				ID:         u.ID(),
				Version:    u.Spec(),
				Enabled:    u.Enabled(),
				Autoload:   u.Autoload(),
				Eager:      u.Eager(),
				Fixed:      u.Fixed(),
				Reloadable: u.Reloadable(),
				StartLevel: u.StartLevel(),
				Origin:     u.Origin(),
				Problems:   failed[u.ID()],
			}
			if !u.Enabled() && st.Problems == nil {
				st.Problems = h.Graph.Problems(u)
			}
			out = append(out, st)
		}
	})
	return out
}

func (h *Host) lookup(ids []string) ([]*unit.Unit, error) {
	units := make([]*unit.Unit, 0, len(ids))
	for _, id := range ids {
		u := h.Graph.Get(id)
		if u == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
		}
		units = append(units, u)
	}
	return units, nil
}

// Enable enables the named units with everything they need and returns the
// ids that were switched on, in enablement order.
func (h *Host) Enable(ids ...string) ([]string, error) {
	var changed []string
	err := h.Graph.WriteAccess(func() error {
		units, err := h.lookup(ids)
		if err != nil {
			return err
		}
		list, err := h.Graph.SimulateEnable(units)
		if err != nil {
			return err
		}
		if err := h.Graph.Enable(units); err != nil {
			return err
		}
		changed = idsOf(list)
		return nil
	})
	return changed, err
}

// Disable disables the named units and returns the ids switched off. Without
// cascade, units that other enabled units still need are refused with a
// *unit.StrandError.
func (h *Host) Disable(cascade bool, ids ...string) ([]string, error) {
	var changed []string
	err := h.Graph.WriteAccess(func() error {
		units, err := h.lookup(ids)
		if err != nil {
			return err
		}
		list, err := h.Graph.SimulateDisable(units)
		if err != nil {
			return err
		}
		if cascade {
			units = list
		}
		if err := h.Graph.Disable(units); err != nil {
			return err
		}
		changed = idsOf(list)
		return nil
	})
	return changed, err
}

// Classpath returns the effective classpath of a unit.
func (h *Host) Classpath(id string) ([]visibility.Entry, error) {
	var (
		cp  []visibility.Entry
		err error
	)
	h.Graph.ReadAccess(func() {
		var units []*unit.Unit
		if units, err = h.lookup([]string{id}); err == nil {
			cp = h.Resolver.EffectiveClasspath(units[0])
		}
	})
	return cp, err
}

// MayDelegate reports whether the unit may load resource from parent, or
// from the host loader when parent is empty.
func (h *Host) MayDelegate(id, parent, resource string) (bool, error) {
	var (
		ok  bool
		err error
	)
	h.Graph.ReadAccess(func() {
		ids := []string{id}
		if parent != "" {
			ids = append(ids, parent)
		}
		var units []*unit.Unit
		if units, err = h.lookup(ids); err != nil {
			return
		}
		var p *unit.Unit
		if parent != "" {
			p = units[1]
		}
		ok = h.Resolver.MayDelegate(units[0], p, resource)
	})
	return ok, err
}

func idsOf(units []*unit.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.ID()
	}
	return out
}
