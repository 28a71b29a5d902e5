package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestFileName(t *testing.T) {
	assert.Equal(t, "org-acme-editor.yaml", FileName("org.acme.editor"))
	assert.Equal(t, "single.yaml", FileName("single"))
	assert.Equal(t, "org-foo--bar.yaml", FileName("org.foo-bar"))
	assert.Equal(t, "org--foo-bar.yaml", FileName("org-foo.bar"))
}

func TestUnitID(t *testing.T) {
	for _, id := range []string{"org.acme.editor", "single", "org.foo-bar", "org-foo.bar", "a-.b", "x--y.z_"} {
		got, ok := UnitID(FileName(id))
		assert.True(t, ok, id)
		assert.Equal(t, id, got)
	}

	_, ok := UnitID("org-a.yml")
	assert.False(t, ok)
	_, ok = UnitID(".yaml")
	assert.False(t, ok)
}

func TestRecord_MarshalAndParse(t *testing.T) {
	rec := &Record{Name: "org.acme.editor", Jar: "units/editor.jar", Enabled: boolPtr(true), StartLevel: 3}
	data, err := rec.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "name: org.acme.editor\njar: units/editor.jar\nenabled: true\nstartlevel: 3\n", string(data))

	back, err := ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestParseRecord_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing jar", "name: org.a\n"},
		{"unknown key", "name: org.a\njar: a.jar\ncolour: red\n"},
		{"bad name", "name: 9lives\njar: a.jar\n"},
		{"negative start level", "name: org.a\njar: a.jar\nstartlevel: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema violations")
		})
	}
}

func TestRecord_Equal(t *testing.T) {
	base := Record{Name: "org.a", Jar: "a.jar"}

	off := base
	off.Enabled = boolPtr(false)
	assert.True(t, base.Equal(&off), "absent enabled flag counts as false")

	on := base
	on.Enabled = boolPtr(true)
	assert.False(t, base.Equal(&on))

	auto := base
	auto.Autoload = true
	autoOn := auto
	autoOn.Enabled = boolPtr(true)
	assert.True(t, auto.Equal(&autoOn), "enablement of derived records is ignored")

	level := base
	level.StartLevel = 2
	assert.False(t, base.Equal(&level))

	var none *Record
	assert.False(t, base.Equal(none))
	assert.True(t, none.Equal(nil))
}

func TestRecord_WantsEnabled(t *testing.T) {
	assert.False(t, (&Record{}).WantsEnabled())
	assert.True(t, (&Record{Enabled: boolPtr(true)}).WantsEnabled())
	assert.False(t, (&Record{Enabled: boolPtr(true), Eager: true}).WantsEnabled())
}
