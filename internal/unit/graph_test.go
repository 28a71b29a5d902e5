package unit

import (
	"errors"
	"testing"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDesc(t *testing.T, doc string) *manifest.Descriptor {
	t.Helper()
	d, err := manifest.Parse([]byte(doc), t.Name())
	require.NoError(t, err)
	return d
}

// fixture creates units in a fresh graph under write access.
type fixture struct {
	t *testing.T
	g *Graph
}

func newFixture(t *testing.T, refiner Refiner) *fixture {
	return &fixture{t: t, g: NewGraph(refiner, nil)}
}

func (f *fixture) create(doc string, autoload, eager bool) *Unit {
	f.t.Helper()
	var u *Unit
	err := f.g.WriteAccess(func() error {
		var err error
		u, err = f.g.Create(parseDesc(f.t, doc), "/units/"+f.t.Name()+".jar", autoload, eager)
		return err
	})
	require.NoError(f.t, err)
	return u
}

func (f *fixture) enable(units ...*Unit) error {
	return f.g.WriteAccess(func() error { return f.g.Enable(units) })
}

func (f *fixture) disable(units ...*Unit) error {
	return f.g.WriteAccess(func() error { return f.g.Disable(units) })
}

func ids(units []*Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.ID()
	}
	return out
}

func TestAutoloadEnabledAndDisabledWithDependent(t *testing.T) {
	f := newFixture(t, nil)
	p := f.create("id: org.p", true, false)
	q := f.create("id: org.q\ndependencies:\n  units: [org.p]", false, false)

	var sim []*Unit
	f.g.ReadAccess(func() {
		var err error
		sim, err = f.g.SimulateEnable([]*Unit{q})
		require.NoError(t, err)
	})
	assert.Equal(t, []string{"org.p", "org.q"}, ids(sim))

	require.NoError(t, f.enable(q))
	assert.True(t, p.Enabled(), "autoload P must be enabled through Q")
	assert.True(t, q.Enabled())

	f.g.ReadAccess(func() {
		var err error
		sim, err = f.g.SimulateDisable([]*Unit{q})
		require.NoError(t, err)
	})
	assert.Equal(t, []string{"org.q", "org.p"}, ids(sim), "dependents come first")

	require.NoError(t, f.disable(q))
	assert.False(t, q.Enabled())
	assert.False(t, p.Enabled(), "P is needed by nobody once Q is disabled")
}

func TestAutoloadKeptWhileStillUsed(t *testing.T) {
	f := newFixture(t, nil)
	p := f.create("id: org.p", true, false)
	q := f.create("id: org.q\ndependencies:\n  units: [org.p]", false, false)
	r := f.create("id: org.r\ndependencies:\n  units: [org.p]", false, false)

	require.NoError(t, f.enable(q, r))
	require.NoError(t, f.disable(q))
	assert.True(t, p.Enabled(), "R still uses P")
	assert.True(t, r.Enabled())
}

func TestEnable_UnsatisfiedReturnsInvalidError(t *testing.T) {
	f := newFixture(t, nil)
	f.create("id: org.base\nspec: \"1.0\"", false, false)
	a := f.create("id: org.a\ndependencies:\n  units: [\"org.base > 2.0\"]", false, false)
	b := f.create("id: org.b\ndependencies:\n  units: [org.missing]", false, false)

	err := f.enable(a)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, a, invalid.Unit)
	assert.Len(t, invalid.Problems, 1)
	assert.False(t, a.Enabled())

	f.g.ReadAccess(func() {
		assert.Equal(t, []string{"missing unit org.missing"}, f.g.Problems(b))
	})
}

func TestEnable_DependentOfUnsatisfiable(t *testing.T) {
	f := newFixture(t, nil)
	f.create("id: org.a\ndependencies:\n  units: [org.missing]", false, false)
	b := f.create("id: org.b\ndependencies:\n  units: [org.a]", false, false)

	f.g.ReadAccess(func() {
		sim, err := f.g.SimulateEnable([]*Unit{b})
		require.NoError(t, err)
		assert.Empty(t, sim)
		assert.Equal(t, []string{"org.a cannot be enabled"}, f.g.Problems(b))
	})
}

func TestEnable_TokenProviders(t *testing.T) {
	f := newFixture(t, nil)
	auto := f.create("id: org.impl.auto\nprovides: [cap.x]", true, false)
	regular := f.create("id: org.impl.regular\nprovides: [cap.x]", false, false)
	user := f.create("id: org.user\ndependencies:\n  requires: [cap.x]", false, false)

	require.NoError(t, f.enable(user))
	assert.True(t, auto.Enabled(), "autoload provider preferred")
	assert.False(t, regular.Enabled())

	f2 := newFixture(t, nil)
	regular2 := f2.create("id: org.impl.regular\nprovides: [cap.x]", false, false)
	user2 := f2.create("id: org.user\ndependencies:\n  needs: [cap.x]", false, false)
	require.NoError(t, f2.enable(user2))
	assert.True(t, regular2.Enabled())

	f3 := newFixture(t, nil)
	user3 := f3.create("id: org.user\ndependencies:\n  requires: [cap.none]\n  recommends: [cap.other]", false, false)
	err := f3.enable(user3)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"no unit provides cap.none"}, invalid.Problems)
}

func TestEnable_EagerJoinsWhenSatisfiable(t *testing.T) {
	f := newFixture(t, nil)
	base := f.create("id: org.base", false, false)
	bridge := f.create("id: org.bridge\ndependencies:\n  units: [org.base, org.lib]", false, true)
	lib := f.create("id: org.lib", true, false)
	blocked := f.create("id: org.blocked\ndependencies:\n  units: [org.base, org.other]", false, true)
	other := f.create("id: org.other", false, false)

	require.NoError(t, f.enable(base))
	assert.True(t, bridge.Enabled(), "eager unit enabled once its deps are")
	assert.True(t, lib.Enabled(), "autoload pulled in by eager unit")
	assert.False(t, blocked.Enabled(), "eager unit must not pull in regular units")
	assert.False(t, other.Enabled())
}

func TestSimulateEnable_TopologicalOrder(t *testing.T) {
	f := newFixture(t, nil)
	c := f.create("id: org.c\ndependencies:\n  units: [org.b]", false, false)
	f.create("id: org.b\ndependencies:\n  units: [org.a]", false, false)
	f.create("id: org.a", false, false)

	f.g.ReadAccess(func() {
		sim, err := f.g.SimulateEnable([]*Unit{c})
		require.NoError(t, err)
		assert.Equal(t, []string{"org.a", "org.b", "org.c"}, ids(sim))
	})
}

func TestDisable_StrandsDependents(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create("id: org.a", false, false)
	b := f.create("id: org.b\ndependencies:\n  units: [org.a]", false, false)
	require.NoError(t, f.enable(b))

	err := f.disable(a)
	var strand *StrandError
	require.ErrorAs(t, err, &strand)
	assert.Equal(t, []string{"org.b"}, ids(strand.Units))
	assert.True(t, a.Enabled())

	var sim []*Unit
	f.g.ReadAccess(func() {
		sim, err = f.g.SimulateDisable([]*Unit{a})
		require.NoError(t, err)
	})
	require.NoError(t, f.disable(sim...))
	assert.False(t, a.Enabled())
	assert.False(t, b.Enabled())
}

func TestFixedUnits(t *testing.T) {
	f := newFixture(t, nil)
	var core *Unit
	require.NoError(t, f.g.WriteAccess(func() error {
		var err error
		core, err = f.g.CreateFixed(parseDesc(t, "id: org.core"), "", false, false)
		return err
	}))
	assert.True(t, core.Enabled())
	assert.True(t, errors.Is(f.disable(core), ErrFixed))

	err := f.g.WriteAccess(func() error { return f.g.Delete(core) })
	assert.ErrorIs(t, err, ErrFixed)
}

func TestCreate_DuplicateAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create("id: org.a", false, false)

	err := f.g.WriteAccess(func() error {
		_, err := f.g.Create(parseDesc(t, "id: org.a"), "", false, false)
		return err
	})
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, f.enable(a))
	assert.Error(t, f.g.WriteAccess(func() error { return f.g.Delete(a) }), "enabled units cannot be deleted")

	require.NoError(t, f.disable(a))
	require.NoError(t, f.g.WriteAccess(func() error { return f.g.Delete(a) }))
	assert.False(t, a.Valid())
	f.g.ReadAccess(func() { assert.Nil(t, f.g.Get("org.a")) })

	err = f.g.WriteAccess(func() error { return f.g.SetReloadable(a, true) })
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCreate_RefinesDependencies(t *testing.T) {
	x, _ := dependency.Parse(dependency.KindUnit, "org.x")
	y, _ := dependency.Parse(dependency.KindUnit, "org.y > 2.0")
	engine := transform.New([]transform.Group{{
		Description: "org.x was renamed",
		Rules: []transform.Rule{{
			Trigger: transform.Trigger{Type: transform.TriggerCancel, Pattern: x},
			Results: []dependency.Dependency{y},
		}},
	}}, nil)

	f := newFixture(t, engine)
	u := f.create("id: org.app\ndependencies:\n  units: [org.x]", false, false)
	assert.Equal(t, []dependency.Dependency{y}, u.Dependencies())
	assert.Equal(t, []dependency.Dependency{x}, u.Refinement().Removed)
	assert.True(t, u.DependsOn("org.y"))
}

func TestEventsDeliveredAfterUnlock(t *testing.T) {
	f := newFixture(t, nil)
	a := f.create("id: org.a", false, false)

	var got []Event
	cancel := f.g.Subscribe(func(ev Event) {
		got = append(got, ev)
		// Re-entering write access from a listener must not deadlock.
		_ = f.g.WriteAccess(func() error { return nil })
	})

	require.NoError(t, f.enable(a))
	require.NoError(t, f.g.WriteAccess(func() error { return f.g.SetReloadable(a, true) }))
	require.NoError(t, f.g.WriteAccess(func() error { return f.g.SetStartLevel(a, 3) }))
	require.NoError(t, f.g.WriteAccess(func() error { return f.g.SetReloadable(a, true) }))

	kinds := make([]EventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{EventEnabled, EventReloadable, EventStartLevel}, kinds)

	cancel()
	require.NoError(t, f.disable(a))
	assert.Len(t, got, 3, "no events after cancel")
}

type recordingInstaller struct {
	prepared    map[string]int
	invalidated []string
}

func (r *recordingInstaller) Prepare(u *Unit, batch []*Unit) { r.prepared[u.ID()] = len(batch) }
func (r *recordingInstaller) Invalidate(id string)           { r.invalidated = append(r.invalidated, id) }

func TestInstallerNotified(t *testing.T) {
	f := newFixture(t, nil)
	inst := &recordingInstaller{prepared: map[string]int{}}
	f.g.SetInstaller(inst)

	f.create("id: org.p", true, false)
	q := f.create("id: org.q\ndependencies:\n  units: [org.p]", false, false)
	require.NoError(t, f.enable(q))
	assert.Equal(t, map[string]int{"org.p": 2, "org.q": 2}, inst.prepared)

	require.NoError(t, f.disable(q))
	assert.Equal(t, []string{"org.q", "org.p"}, inst.invalidated)
}

func TestFriendsRestrictDependents(t *testing.T) {
	f := newFixture(t, nil)
	f.create("id: org.lib\nimpl: \"7\"\nfriends: [org.ok]", false, false)
	ok := f.create("id: org.ok\ndependencies:\n  units: [org.lib]", false, false)
	stranger := f.create("id: org.stranger\ndependencies:\n  units: [org.lib]", false, false)
	pinned := f.create("id: org.pinned\ndependencies:\n  units: [\"org.lib = 7\"]", false, false)

	f.g.ReadAccess(func() {
		assert.Empty(t, f.g.Problems(ok))
		assert.Equal(t, []string{"org.stranger is not a friend of org.lib"}, f.g.Problems(stranger))
		assert.Empty(t, f.g.Problems(pinned), "impl-pinned dependencies bypass friend lists")
	})
}
