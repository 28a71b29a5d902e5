package visibility

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/unit"
)

type env struct {
	t *testing.T
	g *unit.Graph
	r *Resolver
}

func newEnv(t *testing.T, cfg Config) *env {
	g := unit.NewGraph(nil, nil)
	r := New(g, cfg, nil)
	g.SetInstaller(r)
	return &env{t: t, g: g, r: r}
}

func (e *env) create(doc string, fixed bool) *unit.Unit {
	e.t.Helper()
	d, err := manifest.Parse([]byte(doc), e.t.Name())
	require.NoError(e.t, err)
	var u *unit.Unit
	err = e.g.WriteAccess(func() error {
		origin := "/inst/" + d.ID + ".jar"
		if fixed {
			u, err = e.g.CreateFixed(d, origin, false, false)
		} else {
			u, err = e.g.Create(d, origin, false, false)
		}
		return err
	})
	require.NoError(e.t, err)
	return u
}

func (e *env) enable(units ...*unit.Unit) {
	e.t.Helper()
	require.NoError(e.t, e.g.WriteAccess(func() error { return e.g.Enable(units) }))
}

func (e *env) classpath(u *unit.Unit) []Entry {
	var cp []Entry
	e.g.ReadAccess(func() { cp = e.r.EffectiveClasspath(u) })
	return cp
}

func (e *env) mayDelegate(u, parent *unit.Unit, resource string) bool {
	var ok bool
	e.g.ReadAccess(func() { ok = e.r.MayDelegate(u, parent, resource) })
	return ok
}

func exports(t *testing.T, patterns ...string) []manifest.PackageExport {
	t.Helper()
	p, err := manifest.ParsePackagePatterns(patterns)
	require.NoError(t, err)
	return p
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestEffectiveClasspath_OrderAndExports(t *testing.T) {
	e := newEnv(t, Config{BootRoots: []string{"/jre/rt.jar"}, StartupPath: []string{"/host/boot.jar"}})
	e.create("id: org.b\npublic_packages: [org.b.api.*]", false)
	a := e.create("id: org.a\ndependencies:\n  units: [org.b]", false)
	e.enable(a)

	want := []Entry{
		{Path: "/jre/rt.jar"},
		{Path: "/host/boot.jar"},
		{Path: "/inst/org.b.jar", Packages: exports(t, "org.b.api.*"), Restricted: true},
		{Path: "/inst/org.a.jar"},
	}
	got := e.classpath(a)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("EffectiveClasspath() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got[2].Allows("org/b/api/"))
	assert.False(t, got[2].Allows("org/b/impl/"), "non-exported package must stay restricted")
	assert.False(t, got[2].Allows("org/b/api/sub/"), "single-package export is not recursive")
}

func TestEffectiveClasspath_ImplPinnedIsOpen(t *testing.T) {
	e := newEnv(t, Config{})
	e.create("id: org.b\nimpl: \"42\"\npublic_packages: []", false)
	a := e.create("id: org.a\ndependencies:\n  units: [\"org.b = 42\"]", false)
	e.enable(a)

	got := e.classpath(a)
	require.Len(t, got, 2)
	assert.False(t, got[0].Restricted, "friend dependency sees everything")
}

func TestEffectiveClasspath_ExplicitEmptyExportsHideAll(t *testing.T) {
	e := newEnv(t, Config{})
	e.create("id: org.b\npublic_packages: []", false)
	a := e.create("id: org.a\ndependencies:\n  units: [org.b]", false)
	e.enable(a)

	got := e.classpath(a)
	require.Len(t, got, 2)
	assert.True(t, got[0].Restricted)
	assert.False(t, got[0].Allows("org/b/"))
}

func TestEffectiveClasspath_Depth(t *testing.T) {
	e := newEnv(t, Config{})
	e.create("id: org.c", false)
	e.create("id: org.b\ndependencies:\n  units: [org.c]", false)
	modern := e.create("id: org.modern\ndependencies:\n  units: [org.b]", false)
	legacy := e.create("id: org.legacy\nformat: legacy\ndependencies:\n  units: [org.b]", false)
	e.enable(modern, legacy)

	assert.Equal(t, []string{"/inst/org.b.jar", "/inst/org.modern.jar"}, paths(e.classpath(modern)))
	assert.Equal(t, []string{"/inst/org.c.jar", "/inst/org.b.jar", "/inst/org.legacy.jar"},
		paths(e.classpath(legacy)), "legacy units see transitive dependencies, deepest first")
}

func TestEffectiveClasspath_LegacyCycle(t *testing.T) {
	e := newEnv(t, Config{})
	a := e.create("id: org.a\nformat: legacy\ndependencies:\n  units: [org.b]", false)
	e.create("id: org.b\nformat: legacy\ndependencies:\n  units: [org.a, org.c]", false)
	e.create("id: org.c", false)
	e.enable(a)

	assert.Equal(t, []string{"/inst/org.c.jar", "/inst/org.b.jar", "/inst/org.a.jar"}, paths(e.classpath(a)))
}

func TestDependencyPath_SkipsNonFriendTargets(t *testing.T) {
	e := newEnv(t, Config{})
	e.create("id: org.b\nfriends: [org.other]", false)
	e.create("id: org.c", false)
	a := e.create("id: org.a\ndependencies:\n  units: [org.b, org.c]", false)

	var got []Entry
	e.g.ReadAccess(func() { got = e.r.dependencyPath(a, 1) })
	assert.Equal(t, []string{"/inst/org.c.jar", "/inst/org.a.jar"}, paths(got))
}

func TestEffectiveClasspath_DisabledIsEmpty(t *testing.T) {
	e := newEnv(t, Config{BootRoots: []string{"/jre/rt.jar"}})
	a := e.create("id: org.a", false)
	assert.Empty(t, e.classpath(a))
}

func TestEffectiveClasspath_ClasspathExtensions(t *testing.T) {
	e := newEnv(t, Config{})
	a := e.create("id: org.a\nclasspath: [ext/lexer.jar]", false)
	e.enable(a)
	assert.Equal(t, []string{"/inst/org.a.jar", "/inst/ext/lexer.jar"}, paths(e.classpath(a)))
}

func kosherConfig(t *testing.T) Config {
	return Config{
		StartupPath: []string{"/host/boot.jar", "/host/core-internal.jar"},
		Bundles: []Bundle{{
			Path:     "/host/core-internal.jar",
			Owner:    "org.unitcore.core.internal",
			Packages: exports(t, "org.unitcore.core.internal.**"),
		}},
		HostUnit:     "org.unitcore.core",
		HostPackages: exports(t, "org.unitcore.core.**"),
	}
}

func TestKosherBundles(t *testing.T) {
	e := newEnv(t, kosherConfig(t))
	e.create("id: org.unitcore.core.internal\nimpl: \"1\"", true)
	pinned := e.create("id: org.pinned\ndependencies:\n  units: [\"org.unitcore.core.internal = 1\"]", false)
	plain := e.create("id: org.plain", false)
	legacy := e.create("id: org.legacy\nformat: legacy\ndependencies:\n  units: [org.pinned]", false)
	modern := e.create("id: org.modern\ndependencies:\n  units: [org.pinned]", false)
	e.enable(pinned, plain, legacy, modern)

	internal := Entry{
		Path:       "/host/core-internal.jar",
		Packages:   exports(t, "org.unitcore.core.internal.**"),
		Restricted: true,
	}
	assert.Equal(t, internal, e.classpath(pinned)[1])
	assert.Equal(t, "/inst/org.unitcore.core.internal.jar", e.classpath(pinned)[2].Path)

	assert.NotContains(t, paths(e.classpath(plain)), "/host/core-internal.jar")
	assert.Contains(t, paths(e.classpath(legacy)), "/host/core-internal.jar", "legacy units inherit kosher grants")
	assert.NotContains(t, paths(e.classpath(modern)), "/host/core-internal.jar")

	e.g.ReadAccess(func() {
		assert.True(t, e.r.Kosher(pinned, "/host/core-internal.jar"))
		assert.False(t, e.r.Kosher(modern, "/host/core-internal.jar"))
		assert.False(t, e.r.Kosher(pinned, "/host/boot.jar"))
	})

	res := "org/unitcore/core/internal/Secret.class"
	assert.True(t, e.mayDelegate(pinned, nil, res))
	assert.False(t, e.mayDelegate(plain, nil, res))
}

func TestMayDelegate_HostUnitException(t *testing.T) {
	e := newEnv(t, kosherConfig(t))
	e.create("id: org.unitcore.core", true)
	user := e.create("id: org.user\ndependencies:\n  units: [org.unitcore.core]", false)
	stranger := e.create("id: org.stranger", false)
	e.enable(user, stranger)

	assert.True(t, e.mayDelegate(user, nil, "org/unitcore/core/api/Main.class"))
	assert.False(t, e.mayDelegate(stranger, nil, "org/unitcore/core/api/Main.class"))
	assert.True(t, e.mayDelegate(stranger, nil, "org/acme/Free.class"))
}

func TestMayDelegate_InternalPrefixesFollowGrants(t *testing.T) {
	e := newEnv(t, kosherConfig(t))
	e.create("id: org.unitcore.core", true)
	e.create("id: org.unitcore.core.internal\nimpl: \"1\"", true)
	both := e.create("id: org.both\ndependencies:\n  units: [org.unitcore.core, \"org.unitcore.core.internal = 1\"]", false)
	bundleOnly := e.create("id: org.bundle\ndependencies:\n  units: [\"org.unitcore.core.internal = 1\"]", false)
	e.enable(both, bundleOnly)

	api := "org/unitcore/core/api/Main.class"
	secret := "org/unitcore/core/internal/Secret.class"
	assert.True(t, e.mayDelegate(both, nil, api))
	assert.True(t, e.mayDelegate(both, nil, secret))
	assert.False(t, e.mayDelegate(bundleOnly, nil, api), "a bundle grant does not open the host packages")
	assert.True(t, e.mayDelegate(bundleOnly, nil, secret))
}

func TestMayDelegate_Hidden(t *testing.T) {
	e := newEnv(t, Config{})
	parser := e.create("id: org.parser\nhidden_packages: [org.w3c.dom.**]", false)
	user := e.create("id: org.user\ndependencies:\n  units: [org.parser]", false)
	other := e.create("id: org.other", false)

	assert.True(t, e.mayDelegate(other, parser, "org/w3c/dom/Node.class"), "hides of a disabled unit do not apply")

	e.enable(user, other)
	assert.False(t, e.mayDelegate(other, parser, "org/w3c/dom/Node.class"))
	assert.False(t, e.mayDelegate(other, parser, "/org/w3c/dom/events/Event.class"))
	assert.True(t, e.mayDelegate(other, parser, "org/w3c/css/Rule.class"))

	assert.False(t, e.mayDelegate(user, nil, "org/w3c/dom/Node.class"), "dependency hides govern host delegation")
	assert.False(t, e.mayDelegate(parser, nil, "org/w3c/dom/Node.class"), "a unit's own hides govern host delegation")
	assert.True(t, e.mayDelegate(other, nil, "org/w3c/dom/Node.class"))
}

func TestMayDelegate_FragmentHides(t *testing.T) {
	e := newEnv(t, Config{})
	host := e.create("id: org.host", false)
	frag := e.create("id: org.host.l10n\nfragment_host: org.host\nhidden_packages: [org.bundled.*]", false)
	other := e.create("id: org.other", false)
	e.enable(host, frag, other)

	assert.False(t, e.mayDelegate(other, host, "org/bundled/Res.class"), "fragment hides merge into the host")
	assert.True(t, e.mayDelegate(other, host, "org/bundled/sub/Res.class"))

	require.NoError(t, e.g.WriteAccess(func() error { return e.g.Disable([]*unit.Unit{host, frag}) }))
	assert.True(t, e.mayDelegate(other, host, "org/bundled/Res.class"))
}

func TestMayDelegate_BootDelegation(t *testing.T) {
	e := newEnv(t, Config{BootDelegation: exports(t, "org.xml.**")})
	u := e.create("id: org.u", false)
	p := e.create("id: org.p", false)
	e.enable(u, p)

	assert.True(t, e.mayDelegate(u, nil, "java/lang/String.class"))
	assert.True(t, e.mayDelegate(u, nil, "org/xml/sax/Parser.class"))
	assert.False(t, e.mayDelegate(u, nil, "com/sun/Internal.class"))
	assert.True(t, e.mayDelegate(u, p, "com/sun/Internal.class"), "allow-list only restricts the host loader")
}

func TestPrefixSet(t *testing.T) {
	s := newPrefixSet(exports(t, "org.a.*", "org.b.**"))
	assert.True(t, s.matches("org/a/"))
	assert.False(t, s.matches("org/a/sub/"))
	assert.True(t, s.matches("org/b/"))
	assert.True(t, s.matches("org/b/deep/er/"))
	assert.False(t, s.matches("org/"))
	assert.False(t, s.matches("org/bx/"))

	merged := s.with(exports(t, "org.a.**"))
	assert.True(t, merged.matches("org/a/sub/"))
	assert.False(t, newPrefixSet().matches("org/a/"))
}
